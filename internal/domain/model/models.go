// Package model defines the domain types shared across the ingestion
// pipeline: ledger entries and their keys, canonical readings, simulation
// settings, and the wide source tables produced by the simulation engine.
package model

import (
	"fmt"
	"time"
)

// DatetimeLayout is the canonical textual form for reading timestamps,
// matching the format persisted by the original data pipeline.
const DatetimeLayout = "2006-01-02 15:04:05"

// NoSubdivision is the placeholder stored in every subdivision field that
// does not apply to a reading.
const NoSubdivision = "NA"

// LedgerStatus represents the upload state of one time series stream.
type LedgerStatus string

const (
	StatusNotStarted LedgerStatus = "NOT_STARTED"
	StatusInProgress LedgerStatus = "IN_PROGRESS"
	StatusCompleted  LedgerStatus = "COMPLETED"
)

// String returns the string representation of the LedgerStatus.
func (s LedgerStatus) String() string {
	return string(s)
}

// IngestionKey uniquely identifies one logical time series stream: one
// building, one variable, and optionally one subdivision entity (a zone,
// surface, schedule, or system node). Whole-building variables carry
// NoSubdivision.
type IngestionKey struct {
	BuildingID      int
	VariableName    string
	SubvariableName string
}

// String renders the key for logs and error messages.
func (k IngestionKey) String() string {
	return fmt.Sprintf("building=%d variable=%q subvariable=%q", k.BuildingID, k.VariableName, k.SubvariableName)
}

// LedgerEntry is one durable record of upload progress for an IngestionKey.
// LastUploadedAt, when present, only ever advances; it is never rolled back.
type LedgerEntry struct {
	Key                 IngestionKey
	Status              LedgerStatus
	LastUploadedAt      *time.Time
	LastDurationSeconds float64
}

// SimulationSettings describes one simulation run as supplied by the
// simulation collaborator. The simulation year used for timestamp
// normalization is derived from the run's end datetime.
type SimulationSettings struct {
	StartDatetime      time.Time
	EndDatetime        time.Time
	TimestepMinutes    int
	ReportingFrequency string
}

// Year returns the simulation year used to normalize raw timestamps.
func (s SimulationSettings) Year() int {
	return s.EndDatetime.Year()
}

// WideTable is one variable category's simulation output: one row per
// timestamp, one value column per entity. Columns holds the value column
// headers in source order; the shared time axis is kept on each row as the
// raw engine timestamp.
type WideTable struct {
	BuildingID int
	Category   string
	Columns    []string
	Rows       []WideRow
}

// WideRow is one row of a WideTable. Values are positionally aligned with
// the table's Columns.
type WideRow struct {
	TimestampRaw string
	Values       []float64
}

// CanonicalReading is the narrow, sink-ready row format persisted to the
// timeseriesdata table. Exactly one of the four subdivision fields is
// non-"NA" for subdivided variables; all four are "NA" for whole-building
// variables.
type CanonicalReading struct {
	ID             int64     `gorm:"column:timeseriesdataid;primaryKey;autoIncrement"`
	BuildingID     int       `gorm:"column:buildingid"`
	Datetime       time.Time `gorm:"column:datetime"`
	TimeResolution int       `gorm:"column:timeresolution"`
	VariableName   string    `gorm:"column:variablename"`
	ScheduleName   string    `gorm:"column:schedulename"`
	ZoneName       string    `gorm:"column:zonename"`
	SurfaceName    string    `gorm:"column:surfacename"`
	SystemNodeName string    `gorm:"column:systemnodename"`
	Value          float64   `gorm:"column:value"`
}

// TableName specifies the sink table name for CanonicalReading.
func (CanonicalReading) TableName() string {
	return "timeseriesdata"
}

// SubvariableName returns the single non-"NA" subdivision entity of the
// reading, or NoSubdivision for whole-building readings.
func (r CanonicalReading) SubvariableName() string {
	for _, name := range []string{r.ScheduleName, r.ZoneName, r.SurfaceName, r.SystemNodeName} {
		if name != NoSubdivision {
			return name
		}
	}
	return NoSubdivision
}

// Key returns the IngestionKey this reading belongs to.
func (r CanonicalReading) Key() IngestionKey {
	return IngestionKey{
		BuildingID:      r.BuildingID,
		VariableName:    r.VariableName,
		SubvariableName: r.SubvariableName(),
	}
}

// Building is the metadata parent row for ingested readings. Its attributes
// are supplied by the external model-preparation tooling; ingestion only
// needs the surrogate key.
type Building struct {
	ID             int    `gorm:"column:buildingid;primaryKey;autoIncrement"`
	Category       string `gorm:"column:buildingcategory"`
	Type           string `gorm:"column:buildingtype"`
	Standard       string `gorm:"column:buildingstandard"`
	StandardYear   string `gorm:"column:buildingstandardyear"`
	Location       string `gorm:"column:buildinglocation"`
	HeatingType    string `gorm:"column:buildingheatingtype"`
	FoundationType string `gorm:"column:buildingfoundationtype"`
	ClimateZone    string `gorm:"column:buildingclimatezone"`
	Prototype      string `gorm:"column:buildingprototype"`
	Configuration  string `gorm:"column:buildingconfiguration"`
}

// TableName specifies the table name for Building.
func (Building) TableName() string {
	return "buildings"
}

// OutcomeKind classifies the result of ingesting one key.
type OutcomeKind string

const (
	OutcomeSkipped   OutcomeKind = "SKIPPED"
	OutcomeCompleted OutcomeKind = "COMPLETED"
	OutcomeFailed    OutcomeKind = "FAILED"
)

// IngestOutcome reports the result of ingesting one key: how many rows were
// uploaded, the final watermark, and the error when the key failed.
type IngestOutcome struct {
	Key          IngestionKey
	Kind         OutcomeKind
	RowsUploaded int
	Watermark    *time.Time
	Duration     time.Duration
	Err          error
}

// RunReport aggregates the per-key outcomes of one batch run. One key's
// failure never aborts the run; it is recorded here instead.
type RunReport struct {
	RunID      string
	BuildingID int
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []IngestOutcome
}

// Counts returns the number of skipped, completed, and failed keys.
func (r *RunReport) Counts() (skipped, completed, failed int) {
	for _, o := range r.Outcomes {
		switch o.Kind {
		case OutcomeSkipped:
			skipped++
		case OutcomeCompleted:
			completed++
		case OutcomeFailed:
			failed++
		}
	}
	return skipped, completed, failed
}
