package shape

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedSource is returned when a payload is neither JSON text nor a decoded object.
	ErrUnsupportedSource = errors.New("unsupported payload source")

	// ErrUnknownShape is returned when a shape name is not registered.
	ErrUnknownShape = errors.New("unknown shape")
)

// ParseError is returned when a text payload is not a JSON object.
// No partial result accompanies it.
type ParseError struct {
	Shape string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s payload: %v", e.Shape, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SchemaError is returned alongside a partially filled shape when required
// fields are absent or fields carry the wrong type.
type SchemaError struct {
	Report Report
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Report.Absent) > 0 {
		parts = append(parts, "absent: "+strings.Join(e.Report.Absent, ", "))
	}
	if len(e.Report.Mismatched) > 0 {
		mismatched := make([]string, 0, len(e.Report.Mismatched))
		for _, m := range e.Report.Mismatched {
			mismatched = append(mismatched, fmt.Sprintf("%s (want %s, got %s)", m.Field, m.Want, m.Got))
		}
		parts = append(parts, "wrong type: "+strings.Join(mismatched, ", "))
	}
	return fmt.Sprintf("%s payload does not match schema: %s", e.Report.Shape, strings.Join(parts, "; "))
}
