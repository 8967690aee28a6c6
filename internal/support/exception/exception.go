// Package exception provides the error taxonomy for the ingestion pipeline.
// Failures are categorized by sentinel errors so that callers can distinguish
// malformed input, caller configuration errors, precondition violations, and
// data-sink failures with errors.Is.
package exception

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ingestion pipeline. Wrap these with IngestError (or
// fmt.Errorf + %w) so that callers can classify failures with errors.Is.
var (
	// ErrMalformedTimestamp indicates a simulation timestamp that does not
	// match the `MM/DD  HH:MM:SS` wire format. Not recoverable; the row fails
	// rather than being silently skipped.
	ErrMalformedTimestamp = errors.New("malformed timestamp")

	// ErrUnknownVariableCategory indicates a variable category that matches
	// none of the recognized naming conventions. A caller error; fail fast.
	ErrUnknownVariableCategory = errors.New("unknown variable category")

	// ErrUnorderedSourceTable indicates a source table whose rows are not in
	// non-decreasing timestamp order. The resume protocol depends on time
	// order, so this fails before any partial upload.
	ErrUnorderedSourceTable = errors.New("source table not time-ordered")

	// ErrDuplicateEntity indicates two value columns of one source table that
	// truncate to the same entity name. The table is ambiguous: the entity's
	// readings would arrive as concatenated time runs, which the resume
	// protocol cannot order.
	ErrDuplicateEntity = errors.New("duplicate entity column")

	// ErrLedgerInconsistency indicates a ledger entry with a watermark but
	// status NotStarted. The state is contradictory and is surfaced rather
	// than auto-corrected.
	ErrLedgerInconsistency = errors.New("ledger entry inconsistent")

	// ErrConnection indicates a failure to reach the data store.
	ErrConnection = errors.New("data store connection failure")

	// ErrConstraintViolation indicates the data store rejected a write.
	ErrConstraintViolation = errors.New("data store constraint violation")
)

// IngestError is the error type produced by the ingestion pipeline. It tags
// the wrapped error with the stage that produced it (e.g. "normalize",
// "project", "ledger", "uploader", "store") and a concise message.
type IngestError struct {
	// Stage indicates the pipeline stage where the error occurred.
	Stage string
	// Message is a concise description of the failure.
	Message string
	// Err is the wrapped underlying error, usually one of the sentinels above.
	Err error
}

// New creates a new IngestError wrapping err.
func New(stage, message string, err error) *IngestError {
	return &IngestError{Stage: stage, Message: message, Err: err}
}

// Newf creates a new IngestError with a formatted message wrapping err.
func Newf(stage string, err error, format string, a ...interface{}) *IngestError {
	return &IngestError{Stage: stage, Message: fmt.Sprintf(format, a...), Err: err}
}

// Error implements the error interface.
func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

// Unwrap returns the wrapped error for errors.Is / errors.As.
func (e *IngestError) Unwrap() error {
	return e.Err
}

// IsIngestError reports whether err is (or wraps) an IngestError.
func IsIngestError(err error) bool {
	var ie *IngestError
	return errors.As(err, &ie)
}

// StageOf returns the pipeline stage recorded on err, or "" when err carries
// no IngestError in its chain.
func StageOf(err error) string {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Stage
	}
	return ""
}

// IsCallerError reports whether err is a configuration or precondition error
// that retrying cannot fix (unknown category, duplicate entity, unordered
// table, inconsistent ledger).
func IsCallerError(err error) bool {
	return errors.Is(err, ErrUnknownVariableCategory) ||
		errors.Is(err, ErrDuplicateEntity) ||
		errors.Is(err, ErrUnorderedSourceTable) ||
		errors.Is(err, ErrLedgerInconsistency)
}

// IsSinkError reports whether err originated at the data store boundary.
// Sink errors abort the current key and are surfaced to the caller; the retry
// policy belongs to the external orchestrator.
func IsSinkError(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrConstraintViolation)
}
