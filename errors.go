package contextmemory

import (
	"errors"
	"fmt"

	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/capacity"
	"github.com/barca7453/ContextMemory/idmap"
	"github.com/barca7453/ContextMemory/persistence"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrPositionOutOfRange is returned when the index reports a position the
	// identity map has not assigned, typically because Reset was called
	// without reloading the index.
	ErrPositionOutOfRange = errors.New("position outside the identity map")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrDuplicateID indicates that an external id is already mapped.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDuplicateID struct {
	ID    uint64
	cause error
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("id %d already exists", e.ID)
}

func (e *ErrDuplicateID) Unwrap() error { return e.cause }

// ErrCapacityExceeded indicates that the index could not grow past Capacity.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCapacityExceeded struct {
	Capacity int
	cause    error
}

func (e *ErrCapacityExceeded) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("capacity %d exceeded: %v", e.Capacity, e.cause)
	}
	return fmt.Sprintf("capacity %d exceeded", e.Capacity)
}

func (e *ErrCapacityExceeded) Unwrap() error { return e.cause }

// ErrIndexInsert indicates that the index rejected a point. No mapping was
// recorded for ID.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrIndexInsert struct {
	ID       uint64
	Position uint64
	cause    error
}

func (e *ErrIndexInsert) Error() string {
	return fmt.Sprintf("index insert of id %d at position %d failed: %v", e.ID, e.Position, e.cause)
}

func (e *ErrIndexInsert) Unwrap() error { return e.cause }

// ErrIO indicates that an artifact could not be opened, read or written.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrIO struct {
	Op    string
	Name  string
	cause error
}

func (e *ErrIO) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.cause)
}

func (e *ErrIO) Unwrap() error { return e.cause }

// ErrCorruptData indicates a structurally invalid artifact.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCorruptData struct {
	Name   string
	Reason string
	cause  error
}

func (e *ErrCorruptData) Error() string {
	return fmt.Sprintf("corrupt %s: %s", e.Name, e.Reason)
}

func (e *ErrCorruptData) Unwrap() error { return e.cause }

// artifactError classifies a failure touching the named artifact.
func artifactError(op, name string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, persistence.ErrCorrupt) {
		reason := err.Error()
		var ce *persistence.CorruptError
		if errors.As(err, &ce) {
			reason = ce.Reason
		}
		return &ErrCorruptData{Name: name, Reason: reason, cause: err}
	}
	if errors.Is(err, ann.ErrIncompatible) {
		return &ErrCorruptData{Name: name, Reason: "incompatible with store configuration", cause: err}
	}
	return &ErrIO{Op: op, Name: name, cause: err}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *ann.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	if errors.Is(err, idmap.ErrOutOfRange) {
		return fmt.Errorf("%w: %w", ErrPositionOutOfRange, err)
	}
	if errors.Is(err, capacity.ErrGrowth) || errors.Is(err, ann.ErrCapacityExceeded) {
		return &ErrCapacityExceeded{cause: err}
	}

	return err
}
