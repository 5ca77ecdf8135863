package errors

import (
	"errors"
	"fmt"
	"time"
)

// Stage identifies the pipeline layer an error originated in.
type Stage string

const (
	StageReader     Stage = "reader"
	StageNormalizer Stage = "normalizer"
	StageQC         Stage = "qc"
	StageExporter   Stage = "exporter"
)

// Error codes for the pipeline taxonomy. Reader codes are per-file
// fatal but batch-recoverable; the rest are fatal to the file's run.
const (
	CodeUnrecognizedFormat          = "UNRECOGNIZED_FORMAT"
	CodeMalformedHeader             = "MALFORMED_HEADER"
	CodeTruncatedRecord             = "TRUNCATED_RECORD"
	CodeVariableNotFound            = "VARIABLE_NOT_FOUND"
	CodeIncompleteDerivation        = "INCOMPLETE_DERIVATION"
	CodeInvalidDriftReference       = "INVALID_DRIFT_REFERENCE"
	CodeNonMonotonicAfterCorrection = "NON_MONOTONIC_AFTER_CORRECTION"
	CodeUnsupportedTargetFormat     = "UNSUPPORTED_TARGET_FORMAT"
	CodeAttributeMappingGap         = "ATTRIBUTE_MAPPING_GAP"
)

// PipelineError is a structured error carrying enough context for the
// batch driver to log and skip a failed file: stage, code, file path
// and the offending field or timestamp where one exists.
type PipelineError struct {
	Stage   Stage
	Code    string
	Path    string
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (file %s)", e.Path)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches pipeline errors by code, so callers can test against the
// sentinel values below with errors.Is.
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if errors.As(target, &pe) {
		return e.Code == pe.Code
	}
	return false
}

// Sentinel values for errors.Is comparisons.
var (
	ErrUnrecognizedFormat          = &PipelineError{Stage: StageReader, Code: CodeUnrecognizedFormat, Message: "unrecognized file format"}
	ErrMalformedHeader             = &PipelineError{Stage: StageReader, Code: CodeMalformedHeader, Message: "malformed header"}
	ErrTruncatedRecord             = &PipelineError{Stage: StageReader, Code: CodeTruncatedRecord, Message: "truncated record"}
	ErrVariableNotFound            = &PipelineError{Stage: StageNormalizer, Code: CodeVariableNotFound, Message: "variable not found in dictionary"}
	ErrIncompleteDerivation        = &PipelineError{Stage: StageNormalizer, Code: CodeIncompleteDerivation, Message: "derived variable input missing from every row"}
	ErrInvalidDriftReference       = &PipelineError{Stage: StageQC, Code: CodeInvalidDriftReference, Message: "unusable drift reference timestamps"}
	ErrNonMonotonicAfterCorrection = &PipelineError{Stage: StageQC, Code: CodeNonMonotonicAfterCorrection, Message: "timestamp regression after correction"}
	ErrUnsupportedTargetFormat     = &PipelineError{Stage: StageExporter, Code: CodeUnsupportedTargetFormat, Message: "unsupported target format"}
	ErrAttributeMappingGap         = &PipelineError{Stage: StageExporter, Code: CodeAttributeMappingGap, Message: "canonical variable missing from export mapping"}
)

// New creates a pipeline error for the given stage and code.
func New(stage Stage, code, message string) *PipelineError {
	return &PipelineError{Stage: stage, Code: code, Message: message}
}

// UnrecognizedFormat reports that no reader claimed the file.
func UnrecognizedFormat(path string) *PipelineError {
	return &PipelineError{Stage: StageReader, Code: CodeUnrecognizedFormat, Path: path,
		Message: "no reader recognized the file format"}
}

// MalformedHeader reports a header inconsistent with the data body.
func MalformedHeader(path, detail string) *PipelineError {
	return &PipelineError{Stage: StageReader, Code: CodeMalformedHeader, Path: path,
		Message: fmt.Sprintf("malformed header: %s", detail)}
}

// TruncatedRecord reports a binary record cut short at end-of-file.
func TruncatedRecord(path string, offset int64) *PipelineError {
	return &PipelineError{Stage: StageReader, Code: CodeTruncatedRecord, Path: path,
		Message: fmt.Sprintf("record truncated at byte offset %d", offset)}
}

// VariableNotFound reports a native field absent from the dictionary.
// Soft: the normalizer carries the field through unmapped and records a
// warning instead of failing.
func VariableNotFound(family, field string) *PipelineError {
	return &PipelineError{Stage: StageNormalizer, Code: CodeVariableNotFound, Field: field,
		Message: fmt.Sprintf("no dictionary entry for %s field %q", family, field)}
}

// IncompleteDerivation reports a derived variable whose required
// co-input never appears in the record. Structural, not per-row.
func IncompleteDerivation(path, derived, missing string) *PipelineError {
	return &PipelineError{Stage: StageNormalizer, Code: CodeIncompleteDerivation, Path: path, Field: derived,
		Message: fmt.Sprintf("cannot derive %q: required input %q absent from every row", derived, missing)}
}

// InvalidDriftReference reports deployment reference timestamps no
// linear correction can be derived from, e.g. an instrument window
// whose end does not follow its start.
func InvalidDriftReference(detail string) *PipelineError {
	return &PipelineError{Stage: StageQC, Code: CodeInvalidDriftReference,
		Message: fmt.Sprintf("unusable drift reference: %s", detail)}
}

// NonMonotonicAfterCorrection reports a timestamp regression that
// survived dedup and drift correction. Hard stop before export.
func NonMonotonicAfterCorrection(path, variable string, at time.Time) *PipelineError {
	return &PipelineError{Stage: StageQC, Code: CodeNonMonotonicAfterCorrection, Path: path, Field: variable,
		Message: fmt.Sprintf("series %q regresses at %s", variable, at.UTC().Format(time.RFC3339Nano))}
}

// UnsupportedTargetFormat reports an unknown export format identifier.
func UnsupportedTargetFormat(format string) *PipelineError {
	return &PipelineError{Stage: StageExporter, Code: CodeUnsupportedTargetFormat,
		Message: fmt.Sprintf("unsupported target format %q", format)}
}

// AttributeMappingGap reports a canonical variable with no entry in the
// export mapping table.
func AttributeMappingGap(variable string) *PipelineError {
	return &PipelineError{Stage: StageExporter, Code: CodeAttributeMappingGap, Field: variable,
		Message: fmt.Sprintf("no export mapping for canonical variable %q", variable)}
}

// Wrap creates a standardized error with context following the pattern
// "component.method: action failed: %w".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WithPath returns a copy of the error with the file path filled in,
// leaving the original (possibly sentinel) value untouched.
func WithPath(err error, path string) error {
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Path == "" {
		cp := *pe
		cp.Path = path
		return &cp
	}
	return err
}
