// Package source loads wide simulation output tables from the CSV files the
// simulation engine writes, one file per variable category. The file stem is
// the variable category ("Zone_Air_Temperature.csv" -> "Zone_Air_Temperature")
// and the first column is the shared "Date/Time" axis.
package source

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"epingest/internal/domain/model"
	"epingest/internal/support/exception"
	"epingest/internal/support/logger"
)

const stage = "source"

// timeAxisHeader is the header of the shared timestamp column.
const timeAxisHeader = "Date/Time"

// LoadWideTable reads one variable category's CSV output into a WideTable.
// The variable category is taken from the file stem.
func LoadWideTable(path string, buildingID int) (model.WideTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.WideTable{}, exception.Newf(stage, err, "open %s", path)
	}
	defer f.Close()

	category := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	table, err := ReadWideTable(f, category, buildingID)
	if err != nil {
		return model.WideTable{}, exception.Newf(stage, err, "read %s", path)
	}
	return table, nil
}

// ReadWideTable parses CSV content into a WideTable for the given category.
// The first header must be the Date/Time axis; the remaining headers are the
// value columns. Empty value cells parse as 0.
func ReadWideTable(r io.Reader, category string, buildingID int) (model.WideTable, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return model.WideTable{}, exception.New(stage, "missing header row", err)
	}
	if len(header) < 2 || strings.TrimSpace(header[0]) != timeAxisHeader {
		return model.WideTable{}, exception.Newf(stage, nil,
			"first column must be %q with at least one value column, got %v", timeAxisHeader, header)
	}

	columns := make([]string, len(header)-1)
	for i, h := range header[1:] {
		columns[i] = strings.TrimSpace(h)
	}

	table := model.WideTable{
		BuildingID: buildingID,
		Category:   category,
		Columns:    columns,
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.WideTable{}, exception.New(stage, "malformed CSV record", err)
		}

		row := model.WideRow{
			TimestampRaw: record[0],
			Values:       make([]float64, len(record)-1),
		}
		for i, cell := range record[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return model.WideTable{}, exception.Newf(stage, err, "non-numeric value %q in column %q", cell, columns[i])
			}
			row.Values[i] = v
		}
		table.Rows = append(table.Rows, row)
	}

	logger.Debugf("Loaded wide table %q: %d columns, %d rows.", category, len(table.Columns), len(table.Rows))
	return table, nil
}

// ListTables returns the CSV table files under dir, sorted by name so that a
// rerun visits variables in a stable order.
func ListTables(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, exception.Newf(stage, err, "list %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
