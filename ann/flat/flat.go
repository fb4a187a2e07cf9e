// Package flat provides an exact brute-force ann.Index.
//
// Vectors are kept in one contiguous slab indexed by position. Search scans
// every occupied position, so results are exact; it is meant for small
// stores and as a reference when measuring HNSW recall.
package flat

import (
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/distance"
	"github.com/barca7453/ContextMemory/persistence"
	"github.com/barca7453/ContextMemory/queue"
)

// Options represents the options for configuring the flat index.
type Options struct {
	// Compression is applied to the native form written by Save.
	Compression persistence.Compression
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	Compression: persistence.CompressionNone,
}

// Flat represents a brute-force index.
type Flat struct {
	cfg  ann.Config
	opts Options
	dist distance.Func

	capacity int
	vectors  []float32 // capacity * dim
	occupied *roaring64.Bitmap
}

// Compile time check to ensure Flat satisfies ann.Index.
var _ ann.Index = (*Flat)(nil)

// New creates an empty flat index for cfg.
func New(cfg ann.Config, optFns ...func(o *Options)) (*Flat, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	dist, err := distance.Provider(cfg.Metric)
	if err != nil {
		return nil, err
	}

	return &Flat{
		cfg:      cfg,
		opts:     opts,
		dist:     dist,
		capacity: cfg.Capacity,
		vectors:  make([]float32, cfg.Capacity*cfg.Dimension),
		occupied: roaring64.New(),
	}, nil
}

// Factory returns an ann.Factory building flat indexes with optFns.
func Factory(optFns ...func(o *Options)) ann.Factory {
	return func(cfg ann.Config) (ann.Index, error) {
		return New(cfg, optFns...)
	}
}

func (f *Flat) vector(pos uint64) []float32 {
	dim := uint64(f.cfg.Dimension)
	return f.vectors[pos*dim : (pos+1)*dim]
}

// AddPoint stores vec at position pos.
func (f *Flat) AddPoint(vec []float32, pos uint64) error {
	if len(vec) != f.cfg.Dimension {
		return &ann.ErrDimensionMismatch{Expected: f.cfg.Dimension, Actual: len(vec)}
	}
	if pos >= uint64(f.capacity) {
		return fmt.Errorf("%w: position %d, capacity %d", ann.ErrCapacityExceeded, pos, f.capacity)
	}
	if f.occupied.Contains(pos) {
		return fmt.Errorf("%w: position %d", ann.ErrSlotOccupied, pos)
	}

	dst := f.vector(pos)
	copy(dst, vec)
	if f.cfg.Metric.NeedsNormalization() {
		distance.NormalizeL2InPlace(dst)
	}
	f.occupied.Add(pos)
	return nil
}

// SearchNearest scans every stored point and returns the k closest.
func (f *Flat) SearchNearest(query []float32, k int) ([]ann.Neighbor, error) {
	if len(query) != f.cfg.Dimension {
		return nil, &ann.ErrDimensionMismatch{Expected: f.cfg.Dimension, Actual: len(query)}
	}
	if k <= 0 || f.occupied.IsEmpty() {
		return []ann.Neighbor{}, nil
	}

	q := query
	if f.cfg.Metric.NeedsNormalization() {
		// A zero query has no direction; it is scanned as given.
		if n, ok := distance.NormalizeL2Copy(query); ok {
			q = n
		}
	}

	top := queue.NewMax(k + 1)
	it := f.occupied.Iterator()
	for it.HasNext() {
		pos := it.Next()
		d := f.dist(q, f.vector(pos))
		if top.Len() < k || d < top.Top().Distance {
			top.PushItem(queue.Item{Position: pos, Distance: d})
			if top.Len() > k {
				top.PopItem()
			}
		}
	}

	res := make([]ann.Neighbor, top.Len())
	for i := len(res) - 1; i >= 0; i-- {
		it := top.PopItem()
		res[i] = ann.Neighbor{Position: it.Position, Distance: it.Distance}
	}
	return res, nil
}

// Resize changes the maximum number of storable points.
func (f *Flat) Resize(newCapacity int) error {
	if newCapacity < 0 {
		return fmt.Errorf("flat: invalid capacity %d", newCapacity)
	}
	if !f.occupied.IsEmpty() && f.occupied.Maximum() >= uint64(newCapacity) {
		return fmt.Errorf("%w: highest position %d, requested capacity %d", ann.ErrShrink, f.occupied.Maximum(), newCapacity)
	}

	size := newCapacity * f.cfg.Dimension
	if size <= len(f.vectors) {
		f.vectors = slices.Clip(f.vectors[:size])
	} else {
		f.vectors = append(f.vectors, make([]float32, size-len(f.vectors))...)
	}
	f.capacity = newCapacity
	f.cfg.Capacity = newCapacity
	return nil
}

// SetEF records ef. The exhaustive scan does not use it.
func (f *Flat) SetEF(ef int) { f.cfg.EF = ef }

// EF returns the recorded query breadth.
func (f *Flat) EF() int { return f.cfg.EF }

// Len returns the number of stored points.
func (f *Flat) Len() int { return int(f.occupied.GetCardinality()) }

// Capacity returns the maximum number of storable points.
func (f *Flat) Capacity() int { return f.capacity }
