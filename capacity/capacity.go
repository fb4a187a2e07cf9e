// Package capacity decides when and how far the index and the reverse
// identity map grow.
//
// The index doubles when the next position reaches its capacity. The
// reverse map is reserved in fixed chunks ahead of the next position.
package capacity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/barca7453/ContextMemory/resource"
)

// DefaultReserveChunk is the number of reverse slots reserved beyond the
// next position whenever the reverse map runs out.
const DefaultReserveChunk = 1000

// ErrGrowth is returned when the index cannot be grown.
var ErrGrowth = errors.New("capacity: index growth failed")

// Resizable is the part of an ann.Index the manager needs.
type Resizable interface {
	Capacity() int
	Resize(newCapacity int) error
}

// Reservable is the part of an idmap.Map the manager needs.
type Reservable interface {
	Reserved() int
	Reserve(n int)
}

// GrowEvent describes one successful index growth.
type GrowEvent struct {
	From     int
	To       int
	Duration time.Duration
}

// Options configures a Manager.
type Options struct {
	// ReserveChunk is the reverse map reservation step. Defaults to
	// DefaultReserveChunk.
	ReserveChunk int

	// MaxCapacity is a hard upper bound on index capacity. 0 means unbounded.
	MaxCapacity int

	// BytesPerPoint is charged against Controller's memory budget for every
	// slot added by growth. 0 disables budgeting.
	BytesPerPoint int64

	// Controller enforces the memory budget. May be nil.
	Controller *resource.Controller

	// OnGrow is called after each successful growth.
	OnGrow func(GrowEvent)
}

// Manager applies the growth policy.
type Manager struct {
	opts    Options
	charged int64
}

// New creates a Manager.
func New(opts Options) *Manager {
	if opts.ReserveChunk <= 0 {
		opts.ReserveChunk = DefaultReserveChunk
	}
	return &Manager{opts: opts}
}

// NextCapacity returns the capacity the index grows to from current.
func NextCapacity(current int) int {
	if current <= 0 {
		return 1
	}
	if current > math.MaxInt/2 {
		return math.MaxInt
	}
	return current * 2
}

// EnsureIndex grows idx when next has no slot. It is a no-op while
// next < idx.Capacity().
func (m *Manager) EnsureIndex(next uint64, idx Resizable) error {
	from := idx.Capacity()
	if next < uint64(from) {
		return nil
	}

	to := NextCapacity(from)
	if m.opts.MaxCapacity > 0 && to > m.opts.MaxCapacity {
		to = m.opts.MaxCapacity
	}
	if uint64(to) <= next {
		return fmt.Errorf("%w: capacity %d reached limit %d", ErrGrowth, from, m.opts.MaxCapacity)
	}

	cost := int64(to-from) * m.opts.BytesPerPoint
	if !m.opts.Controller.TryAcquireMemory(cost) {
		return fmt.Errorf("%w: memory budget exhausted growing %d -> %d", ErrGrowth, from, to)
	}

	start := time.Now()
	if err := idx.Resize(to); err != nil {
		m.opts.Controller.ReleaseMemory(cost)
		return fmt.Errorf("%w: %w", ErrGrowth, err)
	}
	if m.opts.Controller != nil {
		m.charged += cost
	}

	if m.opts.OnGrow != nil {
		m.opts.OnGrow(GrowEvent{From: from, To: to, Duration: time.Since(start)})
	}
	return nil
}

// EnsureReverse reserves next+ReserveChunk slots when next has no reverse
// slot.
func (m *Manager) EnsureReverse(next uint64, r Reservable) {
	if next < uint64(r.Reserved()) {
		return
	}
	r.Reserve(int(next) + m.opts.ReserveChunk)
}

// Release returns every byte charged by growth to the controller. Call it
// when the grown index is discarded.
func (m *Manager) Release() {
	m.opts.Controller.ReleaseMemory(m.charged)
	m.charged = 0
}
