package engine

import (
	"errors"
	"fmt"
)

// ErrIntegrity marks a broken internal invariant. It indicates a defect in
// the engine or its caller, never bad user input.
var ErrIntegrity = errors.New("engine: integrity violation")

// Dimensions is a width/height pair.
type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// DimensionMismatchError is returned when a comparison image does not match
// the base image size.
type DimensionMismatchError struct {
	Name     string
	Expected Dimensions
	Got      Dimensions
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("palette file %q has the wrong file dimensions compared to base sprite: got %s, want %s", e.Name, e.Got, e.Expected)
}

// SchemaError is returned when an incoming document cannot be merged.
type SchemaError struct {
	Name   string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("document %q: %s", e.Name, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

func integrityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}
