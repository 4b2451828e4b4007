package reports

import (
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("reports: not found")
	// ErrDuplicateSerial is returned by repositories when an insert hits the
	// serial_number unique constraint.
	ErrDuplicateSerial = errors.New("reports: duplicate serial number")
	// ErrExhaustedRetries means no unique serial could be allocated.
	ErrExhaustedRetries = errors.New("reports: serial number allocation exhausted retries")
	ErrValidation       = errors.New("reports: validation failed")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field-level problem with a submission.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "reports: validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
