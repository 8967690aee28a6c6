// Package project reshapes wide simulation output tables into narrow
// canonical readings. Dispatch is by naming convention on the table's
// variable category; an exact category match wins over a prefix match.
package project

import (
	"strings"
	"time"

	"epingest/internal/domain/model"
	"epingest/internal/normalize"
	"epingest/internal/support/exception"
)

const stage = "project"

// scheduleCategory is the one category dispatched by exact name; every value
// column of its table is a distinct schedule.
const scheduleCategory = "Schedule_Value"

// subdivision identifies which CanonicalReading field receives the entity
// name for a given category family.
type subdivision int

const (
	subdivisionNone subdivision = iota
	subdivisionSchedule
	subdivisionZone
	subdivisionSurface
	subdivisionSystemNode
)

// classify maps a variable category to its subdivision family. Order
// matters: the exact Schedule_Value match is checked before any prefix.
func classify(category string) (subdivision, error) {
	switch {
	case category == scheduleCategory:
		return subdivisionSchedule, nil
	case strings.HasPrefix(category, "Facility"), strings.HasPrefix(category, "Site"):
		return subdivisionNone, nil
	case strings.HasPrefix(category, "Zone"):
		return subdivisionZone, nil
	case strings.HasPrefix(category, "Surface"):
		return subdivisionSurface, nil
	case strings.HasPrefix(category, "System_node"):
		return subdivisionSystemNode, nil
	default:
		return 0, exception.Newf(stage, exception.ErrUnknownVariableCategory, "category %q", category)
	}
}

// VariableName returns the human-readable variable name for a category:
// underscores replaced with spaces.
func VariableName(category string) string {
	return strings.TrimSpace(strings.ReplaceAll(category, "_", " "))
}

// entityName truncates a column header at its first colon. The engine labels
// columns like "ZONE A:Zone Air Temperature [C]"; the entity is the part
// left of the colon.
func entityName(column string) string {
	name, _, _ := strings.Cut(column, ":")
	return strings.TrimSpace(name)
}

// Project transforms a wide table into canonical readings tagged with the
// table's variable category. Readings are emitted per entity, time-ascending
// within each entity, so the slice restricted to any single ingestion key is
// in source row order. Projection is pure and deterministic: re-running it on
// the same table yields the same readings.
func Project(table model.WideTable, settings model.SimulationSettings) ([]model.CanonicalReading, error) {
	sub, err := classify(table.Category)
	if err != nil {
		return nil, err
	}

	// Normalize the shared time axis once; every entity reuses it.
	axis, err := normalizeAxis(settings.Year(), table.Rows)
	if err != nil {
		return nil, err
	}

	base := model.CanonicalReading{
		BuildingID:     table.BuildingID,
		TimeResolution: settings.TimestepMinutes,
		VariableName:   VariableName(table.Category),
		ScheduleName:   model.NoSubdivision,
		ZoneName:       model.NoSubdivision,
		SurfaceName:    model.NoSubdivision,
		SystemNodeName: model.NoSubdivision,
	}

	if sub == subdivisionNone {
		// Whole-building variable: single value column, the first one.
		if len(table.Columns) == 0 {
			return nil, exception.Newf(stage, exception.ErrUnknownVariableCategory,
				"category %q has no value column", table.Category)
		}
		readings := make([]model.CanonicalReading, 0, len(table.Rows))
		for i, row := range table.Rows {
			r := base
			r.Datetime = axis[i]
			r.Value = valueAt(row, 0)
			readings = append(readings, r)
		}
		return readings, nil
	}

	// Subdivided variable: one entity per value column, column-major so that
	// each entity's readings are contiguous and time-ordered.
	readings := make([]model.CanonicalReading, 0, len(table.Rows)*len(table.Columns))
	for col, column := range table.Columns {
		entity := entityName(column)
		for i, row := range table.Rows {
			r := base
			r.Datetime = axis[i]
			r.Value = valueAt(row, col)
			switch sub {
			case subdivisionSchedule:
				r.ScheduleName = entity
			case subdivisionZone:
				r.ZoneName = entity
			case subdivisionSurface:
				r.SurfaceName = entity
			case subdivisionSystemNode:
				r.SystemNodeName = entity
			}
			readings = append(readings, r)
		}
	}
	return readings, nil
}

// Keys returns the ingestion keys a table projects onto, in column order.
// Whole-building categories yield a single key with no subdivision. Two
// columns truncating to the same entity make the table ambiguous (the
// entity's readings would be two concatenated time runs), so that fails with
// ErrDuplicateEntity instead of producing a key.
func Keys(table model.WideTable) ([]model.IngestionKey, error) {
	sub, err := classify(table.Category)
	if err != nil {
		return nil, err
	}
	variableName := VariableName(table.Category)

	if sub == subdivisionNone {
		return []model.IngestionKey{{
			BuildingID:      table.BuildingID,
			VariableName:    variableName,
			SubvariableName: model.NoSubdivision,
		}}, nil
	}

	keys := make([]model.IngestionKey, 0, len(table.Columns))
	seen := make(map[string]bool, len(table.Columns))
	for _, column := range table.Columns {
		entity := entityName(column)
		if seen[entity] {
			return nil, exception.Newf(stage, exception.ErrDuplicateEntity,
				"entity %q appears in more than one column of category %q", entity, table.Category)
		}
		seen[entity] = true
		keys = append(keys, model.IngestionKey{
			BuildingID:      table.BuildingID,
			VariableName:    variableName,
			SubvariableName: entity,
		})
	}
	return keys, nil
}

// normalizeAxis normalizes every raw timestamp on the shared time axis.
func normalizeAxis(year int, rows []model.WideRow) ([]time.Time, error) {
	axis := make([]time.Time, len(rows))
	for i, row := range rows {
		ts, err := normalize.Normalize(year, row.TimestampRaw)
		if err != nil {
			return nil, err
		}
		axis[i] = ts
	}
	return axis, nil
}

// valueAt returns the row's value in column col, or 0 for a ragged row.
func valueAt(row model.WideRow, col int) float64 {
	if col < len(row.Values) {
		return row.Values[col]
	}
	return 0
}
