// Package ann defines the contract between the store and the approximate
// nearest-neighbor index it wraps.
//
// An Index stores vectors at dense positions chosen by the caller. It never
// sees external identifiers; translating positions back to caller ids is the
// store's job. Implementations are not safe for concurrent mutation: the
// store serializes writers and lets readers call SearchNearest concurrently.
package ann

import (
	"errors"
	"fmt"
	"io"

	"github.com/barca7453/ContextMemory/distance"
)

var (
	// ErrCapacityExceeded is returned by AddPoint when the position is at or
	// beyond the current capacity.
	ErrCapacityExceeded = errors.New("ann: position exceeds index capacity")

	// ErrSlotOccupied is returned by AddPoint when the position already holds a point.
	ErrSlotOccupied = errors.New("ann: position already occupied")

	// ErrShrink is returned by Resize when the new capacity cannot hold the stored points.
	ErrShrink = errors.New("ann: cannot shrink below element count")

	// ErrIncompatible is returned by Load when the native form was written
	// with a different dimension or metric than the index was constructed with.
	ErrIncompatible = errors.New("ann: incompatible native form")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("ann: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Neighbor is a single search hit.
type Neighbor struct {
	Position uint64
	Distance float32
}

// Config carries the construction parameters of an index.
type Config struct {
	Dimension           int
	Capacity            int
	M                   int // graph fan-out
	EFConstruction      int // construction search breadth
	EF                  int // query search breadth
	AllowReplaceDeleted bool
	Metric              distance.Metric
}

// Validate reports obviously unusable configurations.
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("ann: invalid dimension %d", c.Dimension)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("ann: invalid capacity %d", c.Capacity)
	}
	if _, err := distance.Provider(c.Metric); err != nil {
		return fmt.Errorf("ann: %w", err)
	}
	return nil
}

// Index is the capability set the store depends on.
type Index interface {
	// AddPoint inserts vec at the explicit dense position pos.
	AddPoint(vec []float32, pos uint64) error

	// SearchNearest returns up to k neighbors ordered closest first.
	SearchNearest(query []float32, k int) ([]Neighbor, error)

	// Resize grows the maximum number of storable points.
	Resize(newCapacity int) error

	// SetEF sets the query search breadth.
	SetEF(ef int)

	// EF returns the query search breadth.
	EF() int

	// Len returns the number of stored points.
	Len() int

	// Capacity returns the maximum number of storable points.
	Capacity() int

	// Save writes the index's native form.
	Save(w io.Writer) error

	// Load replaces the index contents with a native form written by Save.
	// The loaded index can hold at least capacity points.
	Load(r io.Reader, capacity int) error
}

// Factory constructs an empty Index for cfg.
type Factory func(cfg Config) (Index, error)
