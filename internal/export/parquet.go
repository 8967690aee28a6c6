// Package export writes retrieved readings to Parquet objects in an object
// store, partitioned Hive-style by reading date.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"epingest/internal/domain/model"
	"epingest/internal/storage"
	"epingest/internal/support/exception"
	"epingest/internal/support/logger"
)

const stage = "export"

// partitionLayout is the date layout of the Hive-style partition directory.
const partitionLayout = "2006-01-02"

// parquetReading is the Parquet row shape of one reading. Datetimes are
// written as canonical strings so the files load without timezone ambiguity.
type parquetReading struct {
	BuildingID     int32   `parquet:"name=buildingid, type=INT32"`
	Datetime       string  `parquet:"name=datetime, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TimeResolution int32   `parquet:"name=timeresolution, type=INT32"`
	VariableName   string  `parquet:"name=variablename, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ScheduleName   string  `parquet:"name=schedulename, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ZoneName       string  `parquet:"name=zonename, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SurfaceName    string  `parquet:"name=surfacename, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SystemNodeName string  `parquet:"name=systemnodename, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Value          float64 `parquet:"name=value, type=DOUBLE"`
}

func toParquetReading(r model.CanonicalReading) parquetReading {
	return parquetReading{
		BuildingID:     int32(r.BuildingID),
		Datetime:       r.Datetime.Format(model.DatetimeLayout),
		TimeResolution: int32(r.TimeResolution),
		VariableName:   r.VariableName,
		ScheduleName:   r.ScheduleName,
		ZoneName:       r.ZoneName,
		SurfaceName:    r.SurfaceName,
		SystemNodeName: r.SystemNodeName,
		Value:          r.Value,
	}
}

// Exporter writes readings to Parquet objects under a base directory in one
// storage bucket.
type Exporter struct {
	store       storage.Connection
	bucket      string
	baseDir     string
	compression parquet.CompressionCodec
}

// NewExporter creates an Exporter. compressionType is SNAPPY, GZIP, or NONE;
// empty selects SNAPPY.
func NewExporter(store storage.Connection, bucket, baseDir, compressionType string) (*Exporter, error) {
	codec, err := compressionCodec(compressionType)
	if err != nil {
		return nil, err
	}
	return &Exporter{store: store, bucket: bucket, baseDir: baseDir, compression: codec}, nil
}

// Export writes the readings as one Parquet object per reading date,
// partitioned as baseDir/dt=YYYY-MM-DD/. It returns the uploaded object
// names; one partition's failure does not abort the others.
func (e *Exporter) Export(ctx context.Context, readings []model.CanonicalReading) ([]string, error) {
	if len(readings) == 0 {
		logger.Infof("No readings to export.")
		return nil, nil
	}

	partitions := make(map[string][]parquetReading)
	for _, r := range readings {
		key := "dt=" + r.Datetime.Format(partitionLayout)
		partitions[key] = append(partitions[key], toParquetReading(r))
	}
	keys := make([]string, 0, len(partitions))
	for key := range partitions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var uploaded []string
	var exportErr *multierror.Error
	for _, key := range keys {
		objectName, err := e.writePartition(ctx, key, partitions[key])
		if err != nil {
			exportErr = multierror.Append(exportErr, err)
			continue
		}
		uploaded = append(uploaded, objectName)
	}
	logger.Infof("Exported %d readings into %d Parquet objects.", len(readings), len(uploaded))
	return uploaded, exportErr.ErrorOrNil()
}

// writePartition serializes one partition's rows and uploads the object.
func (e *Exporter) writePartition(ctx context.Context, partitionKey string, rows []parquetReading) (string, error) {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(parquetReading), 1)
	if err != nil {
		return "", exception.Newf(stage, err, "create Parquet writer for partition %s", partitionKey)
	}
	pw.CompressionType = e.compression

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return "", exception.Newf(stage, err, "write row in partition %s", partitionKey)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return "", exception.Newf(stage, err, "finalize Parquet file for partition %s", partitionKey)
	}

	fileName := fmt.Sprintf("data_%s_%s.parquet", time.Now().UTC().Format("20060102150405"), uuid.New().String()[:8])
	objectName := path.Join(e.baseDir, partitionKey, fileName)
	if err := e.store.Upload(ctx, e.bucket, objectName, buf, "application/octet-stream"); err != nil {
		return "", exception.Newf(stage, err, "upload Parquet object %s", objectName)
	}
	logger.Debugf("Uploaded partition %s (%d rows) to %s.", partitionKey, len(rows), objectName)
	return objectName, nil
}

// compressionCodec maps a configured compression name to its Parquet codec.
func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, exception.Newf(stage, nil, "unsupported compression type %q", compressionType)
	}
}
