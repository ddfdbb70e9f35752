package board

import (
	"errors"
	"fmt"
)

var (
	// ErrCardNotFound is returned when an operation references a card id
	// that exists nowhere on the board.
	ErrCardNotFound = errors.New("card not found")

	// ErrColumnNotFound is returned when an operation targets a column id
	// outside the configured set.
	ErrColumnNotFound = errors.New("column not found")

	// ErrEmptyText rejects card text that is empty after trimming.
	ErrEmptyText = errors.New("card text is empty")

	// ErrInvalidPriority rejects priorities outside High/Normal/Low.
	ErrInvalidPriority = errors.New("invalid priority")
)

// CapacityError reports a move rejected because the target column is at its
// WIP limit. The board is unchanged; the caller informs the user.
type CapacityError struct {
	Column string
	Limit  int
}

func (e CapacityError) Error() string {
	return fmt.Sprintf("column %s is at its WIP limit of %d", e.Column, e.Limit)
}

// MalformedError reports a snapshot that cannot be decoded into a
// board-shaped structure.
type MalformedError struct {
	Reason string
	Err    error
}

func (e MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed board snapshot: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed board snapshot: %s", e.Reason)
}

func (e MalformedError) Unwrap() error { return e.Err }
