package preprocess

import (
	"fmt"
	"strings"
)

// ConfigurationError lists every precondition a run failed. It is returned
// before any array is allocated, so a failed run changes nothing.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid preprocessing configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigurationError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// DataIntegrityError describes a row that still held a non-finite value after
// imputation. Such rows are dropped, not surfaced to the caller.
type DataIntegrityError struct {
	Row    int
	Column string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("row %d: non-finite value in %q", e.Row, e.Column)
}

// EncodingMismatchError reports an inference value that was never seen while
// fitting. The value is still encoded (to the zero vector for one-hot).
type EncodingMismatchError struct {
	Column string
	Value  string
}

func (e *EncodingMismatchError) Error() string {
	return fmt.Sprintf("column %q: value %q not seen during preprocessing", e.Column, e.Value)
}

// MissingValueError reports an inference value that is blank or not a number
// in a column that has no fitted fill value.
type MissingValueError struct {
	Column string
	Value  string
}

func (e *MissingValueError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("column %q: value is missing and has no fill value", e.Column)
	}
	return fmt.Sprintf("column %q: %q is not a number and has no fill value", e.Column, e.Value)
}
