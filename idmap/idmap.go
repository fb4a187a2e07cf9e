// Package idmap maintains the bijection between caller-chosen 64-bit ids and
// dense index positions.
//
// The forward direction (id → position) is an ordered B-tree so snapshots
// and scans come out in id order. The reverse direction (position → id) is
// a slice indexed by position that is reserved ahead of use in chunks.
//
// A Map is not safe for concurrent use; the store guards it with its gate.
package idmap

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/barca7453/ContextMemory/persistence"
	"github.com/tidwall/btree"
)

var (
	// ErrDuplicate is returned by Assign for an id that is already mapped.
	ErrDuplicate = errors.New("idmap: id already mapped")

	// ErrOutOfRange is returned for positions outside the assigned or
	// reserved range.
	ErrOutOfRange = errors.New("idmap: position outside reserved range")
)

type entry struct {
	id  uint64
	pos uint64
}

func entryLess(a, b entry) bool { return a.id < b.id }

func newForward() *btree.BTreeG[entry] {
	return btree.NewBTreeGOptions(entryLess, btree.Options{NoLocks: true})
}

// Map is the identity map.
type Map struct {
	forward  *btree.BTreeG[entry]
	reverse  []uint64 // assigned slots; len(reverse) is the next position
	reserved int      // positions that may be assigned without Reserve
}

// New returns an empty map with reserved reverse slots.
func New(reserved int) *Map {
	reserved = max(reserved, 0)
	return &Map{
		forward:  newForward(),
		reverse:  make([]uint64, 0, reserved),
		reserved: reserved,
	}
}

// Restore rebuilds a map from persisted reverse slots and forward pairs.
// The next position is len(reverse); reserved is raised to at least that.
// Slots beyond len(reverse) are allocated on first use.
func Restore(reverse []uint64, pairs []persistence.Pair, reserved int) *Map {
	out := &Map{
		forward:  newForward(),
		reverse:  slices.Clone(reverse),
		reserved: max(reserved, len(reverse)),
	}
	for _, p := range pairs {
		out.forward.Set(entry{id: p.ID, pos: p.Position})
	}
	return out
}

// Contains reports whether id is mapped.
func (m *Map) Contains(id uint64) bool {
	_, ok := m.forward.Get(entry{id: id})
	return ok
}

// Position returns the position mapped to id.
func (m *Map) Position(id uint64) (uint64, bool) {
	e, ok := m.forward.Get(entry{id: id})
	return e.pos, ok
}

// External returns the id recorded at pos. Positions at or beyond Next are
// never assigned and return ErrOutOfRange.
func (m *Map) External(pos uint64) (uint64, error) {
	if pos >= uint64(len(m.reverse)) {
		return 0, fmt.Errorf("%w: position %d, next %d", ErrOutOfRange, pos, len(m.reverse))
	}
	return m.reverse[pos], nil
}

// Assign maps a new id to the next position.
func (m *Map) Assign(id uint64) (uint64, error) {
	if m.Contains(id) {
		return 0, fmt.Errorf("%w: %d", ErrDuplicate, id)
	}
	return m.Overwrite(id)
}

// Overwrite maps id to the next position, replacing any previous forward
// entry for id. The previous position keeps id in its reverse slot.
func (m *Map) Overwrite(id uint64) (uint64, error) {
	pos := uint64(len(m.reverse))
	if len(m.reverse) >= m.reserved {
		return 0, fmt.Errorf("%w: position %d, reserved %d", ErrOutOfRange, pos, m.reserved)
	}
	m.reverse = append(m.reverse, id)
	m.forward.Set(entry{id: id, pos: pos})
	return pos, nil
}

// Reserve grows the reverse table to at least n slots.
func (m *Map) Reserve(n int) {
	if n <= m.reserved {
		return
	}
	m.reverse = slices.Grow(m.reverse, n-len(m.reverse))
	m.reserved = n
}

// Clear drops every mapping. The reserved size is kept.
func (m *Map) Clear() {
	m.forward = newForward()
	m.reverse = m.reverse[:0]
}

// Len returns the number of distinct mapped ids.
func (m *Map) Len() int { return m.forward.Len() }

// Next returns the next position to be assigned, which equals the number of
// positions handed out so far.
func (m *Map) Next() uint64 { return uint64(len(m.reverse)) }

// Reserved returns the number of reverse slots.
func (m *Map) Reserved() int { return m.reserved }

// Reverse returns a copy of the assigned reverse slots, indexed by position.
func (m *Map) Reverse() []uint64 { return slices.Clone(m.reverse) }

// Forward returns a copy of the forward direction.
func (m *Map) Forward() map[uint64]uint64 {
	out := make(map[uint64]uint64, m.forward.Len())
	for id, pos := range m.All() {
		out[id] = pos
	}
	return out
}

// All yields (id, position) pairs in ascending id order.
func (m *Map) All() iter.Seq2[uint64, uint64] {
	return func(yield func(uint64, uint64) bool) {
		m.forward.Scan(func(e entry) bool {
			return yield(e.id, e.pos)
		})
	}
}
