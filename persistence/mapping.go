package persistence

import (
	"fmt"
	"io"
	"iter"
)

// Pair is one forward-map entry.
type Pair struct {
	ID       uint64
	Position uint64
}

// Mapping is a decoded mapping artifact.
type Mapping struct {
	// Reverse holds the external id of every position below the entry count.
	Reverse []uint64
	// Forward holds the forward-map entries in file order.
	Forward []Pair
}

// WriteMapping writes the entry count, the reverse map and the forward pairs.
//
// reverse must be exactly the live prefix of the reverse map; its length is
// the entry count.
func WriteMapping(w io.Writer, reverse []uint64, forward iter.Seq2[uint64, uint64]) error {
	bw := NewWriter(w)
	bw.Uint64(uint64(len(reverse)))
	bw.Uint64Slice(reverse)
	for id, pos := range forward {
		bw.Uint64(id)
		bw.Uint64(pos)
		if bw.Err() != nil {
			break
		}
	}
	return bw.Err()
}

// ReadMapping decodes a mapping artifact of the given size.
//
// The forward section may hold fewer pairs than the entry count (ids that
// were overwritten by an unvalidated batch add leave a stale reverse slot
// and no pair), but never more. Every pair must point inside the reverse
// map at a slot holding the same id.
func ReadMapping(r io.Reader, size int64) (*Mapping, error) {
	if size < 8 {
		return nil, NewCorruptError("mapping shorter than its header", nil)
	}

	br := NewReader(r)
	count := br.Uint64()
	if err := br.Err(); err != nil {
		return nil, NewCorruptError("truncated mapping header", err)
	}
	if count == 0 {
		return nil, NewCorruptError("mapping declares zero entries", nil)
	}

	body := uint64(size - 8)
	if count > body/8 {
		return nil, NewCorruptError(fmt.Sprintf("mapping declares %d entries but holds %d bytes", count, body), nil)
	}
	pairBytes := body - count*8
	if pairBytes%16 != 0 || pairBytes/16 > count {
		return nil, NewCorruptError(fmt.Sprintf("forward section of %d bytes does not fit %d entries", pairBytes, count), nil)
	}

	m := &Mapping{
		Reverse: make([]uint64, count),
		Forward: make([]Pair, pairBytes/16),
	}
	br.Uint64SliceInto(m.Reverse)

	seen := make(map[uint64]struct{}, len(m.Forward))
	for i := range m.Forward {
		p := Pair{ID: br.Uint64(), Position: br.Uint64()}
		if err := br.Err(); err != nil {
			return nil, NewCorruptError("truncated forward map", err)
		}
		if p.Position >= count {
			return nil, NewCorruptError(fmt.Sprintf("id %d maps to position %d beyond %d entries", p.ID, p.Position, count), nil)
		}
		if m.Reverse[p.Position] != p.ID {
			return nil, NewCorruptError(fmt.Sprintf("id %d maps to position %d holding id %d", p.ID, p.Position, m.Reverse[p.Position]), nil)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, NewCorruptError(fmt.Sprintf("id %d appears twice in the forward map", p.ID), nil)
		}
		seen[p.ID] = struct{}{}
		m.Forward[i] = p
	}
	if err := br.Err(); err != nil {
		return nil, NewCorruptError("truncated reverse map", err)
	}
	return m, nil
}
