// Package errors defines the typed errors shared across the pipeline.
// Errors carry a stable machine-readable code alongside the human message so
// callers can branch without string matching.
package errors

import (
	"errors"
	"fmt"
)

// PipelineError is the structured error type used across pipeline components.
type PipelineError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *PipelineError) Unwrap() error { return e.Err }

// Is matches two pipeline errors by code so sentinel comparisons survive
// wrapping with context.
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if errors.As(target, &pe) {
		return e.Code == pe.Code
	}
	return false
}

// New creates a PipelineError with the given code and message.
func New(code, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message}
}

// Wrap attaches a cause to a copy of the sentinel, preserving its code.
func Wrap(sentinel *PipelineError, err error) *PipelineError {
	return &PipelineError{Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// Predefined errors for common failure scenarios.
var (
	// ErrNoConsolidatedData is returned when a CSV export is requested
	// before any successful run has produced a consolidated dataset.
	ErrNoConsolidatedData = New("NO_CONSOLIDATED_DATA", "no consolidated data available, run the pipeline first")

	// ErrUnsupportedFormat is returned for file extensions or output
	// format selectors the tool does not handle.
	ErrUnsupportedFormat = New("UNSUPPORTED_FORMAT", "unsupported format")

	// ErrUnknownSourceType is returned when a run names a data source
	// that is not configured.
	ErrUnknownSourceType = New("UNKNOWN_SOURCE_TYPE", "unknown source type")

	// ErrNotTabular is returned when a decoded table is not rectangular.
	ErrNotTabular = New("NOT_TABULAR", "input is not a rectangular table")
)
