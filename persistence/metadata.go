package persistence

import (
	"fmt"
	"io"
)

// Metadata is the store configuration persisted next to the index.
type Metadata struct {
	Dimension           uint64
	Capacity            uint64
	M                   uint64
	EFConstruction      uint64
	EF                  uint64
	AllowReplaceDeleted bool
	ReservedSize        uint64
}

// WriteMetadata writes m in its fixed-width layout.
func WriteMetadata(w io.Writer, m Metadata) error {
	bw := NewWriter(w)
	bw.Uint64(m.Dimension)
	bw.Uint64(m.Capacity)
	bw.Uint64(m.M)
	bw.Uint64(m.EFConstruction)
	bw.Uint64(m.EF)
	bw.Bool(m.AllowReplaceDeleted)
	bw.Uint64(m.ReservedSize)
	return bw.Err()
}

// ReadMetadata reads a metadata artifact of the given size.
func ReadMetadata(r io.Reader, size int64) (Metadata, error) {
	if size != MetadataSize {
		return Metadata{}, NewCorruptError(fmt.Sprintf("metadata is %d bytes, want %d", size, MetadataSize), nil)
	}

	br := NewReader(r)
	m := Metadata{
		Dimension:           br.Uint64(),
		Capacity:            br.Uint64(),
		M:                   br.Uint64(),
		EFConstruction:      br.Uint64(),
		EF:                  br.Uint64(),
		AllowReplaceDeleted: br.Bool(),
		ReservedSize:        br.Uint64(),
	}
	if err := br.Err(); err != nil {
		return Metadata{}, NewCorruptError("truncated metadata", err)
	}
	if m.Dimension == 0 || m.Dimension > MaxDimension {
		return Metadata{}, NewCorruptError(fmt.Sprintf("dimension %d out of range", m.Dimension), nil)
	}
	for _, f := range []struct {
		name string
		v    uint64
	}{
		{"capacity", m.Capacity},
		{"m", m.M},
		{"ef_construction", m.EFConstruction},
		{"ef", m.EF},
		{"reserved size", m.ReservedSize},
	} {
		if f.v > MaxElements {
			return Metadata{}, NewCorruptError(fmt.Sprintf("%s %d out of range", f.name, f.v), nil)
		}
	}
	return m, nil
}
