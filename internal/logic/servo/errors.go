package servo

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned by index-based preset operations given an
	// index outside [0, Count).
	ErrOutOfRange = errors.New("servo: index out of range")

	// ErrInvalidNumericInput marks user text that does not parse as a number.
	// Callers discard the edit; it is never a hard failure.
	ErrInvalidNumericInput = errors.New("servo: invalid numeric input")
)

// IndexError describes an index operation that fell outside its list.
type IndexError struct {
	Op    string
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("servo %s: index %d not in [0, %d)", e.Op, e.Index, e.Count)
}

// Unwrap lets errors.Is match ErrOutOfRange.
func (e *IndexError) Unwrap() error {
	return ErrOutOfRange
}
