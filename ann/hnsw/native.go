package hnsw

import (
	"fmt"
	"io"
	"math"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/distance"
	"github.com/barca7453/ContextMemory/persistence"
)

const (
	// nativeMagic identifies an HNSW native form (ASCII: "CMHN").
	nativeMagic = 0x434d484e
	// nativeVersion is the current native format version.
	nativeVersion = 1
	// maxM bounds the fan-out accepted from a native form.
	maxM = 1 << 16
)

// Save writes the native form: a compression tag, then a checksummed stream
// of header, nodes and a CRC32 trailer.
func (h *Index) Save(w io.Writer) error {
	cw, err := persistence.NewCompressWriter(w, h.opts.Compression)
	if err != nil {
		return err
	}

	sum := persistence.NewChecksumWriter(cw)
	bw := persistence.NewWriter(sum)

	bw.Uint32(nativeMagic)
	bw.Uint32(nativeVersion)
	bw.Byte(byte(h.cfg.Metric))
	bw.Uint64(uint64(h.cfg.Dimension))
	bw.Uint64(uint64(len(h.nodes)))
	bw.Uint64(uint64(h.cfg.M))
	bw.Uint64(uint64(h.cfg.EFConstruction))
	bw.Uint64(uint64(h.cfg.EF))
	bw.Bool(h.cfg.AllowReplaceDeleted)
	bw.Uint64(h.ep)
	bw.Uint32(uint32(h.top + 1))
	bw.Uint64(h.occupied.GetCardinality())

	it := h.occupied.Iterator()
	for it.HasNext() && bw.Err() == nil {
		pos := it.Next()
		n := h.nodes[pos]
		bw.Uint64(pos)
		bw.Uint16(uint16(n.level))
		bw.Float32Slice(n.vector)
		for _, links := range n.links {
			bw.Uint32(uint32(len(links)))
			bw.Uint64Slice(links)
		}
	}
	if err := bw.Err(); err != nil {
		_ = cw.Close()
		return err
	}

	trailer := persistence.NewWriter(cw)
	trailer.Uint32(sum.Sum())
	if err := trailer.Err(); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

// Load replaces the graph with a native form written by Save. The
// dimension and metric must match the index's configuration; graph
// parameters are taken from the native form. The resulting capacity is the
// larger of capacity and the saved capacity.
func (h *Index) Load(r io.Reader, capacity int) error {
	dr, err := persistence.NewDecompressReader(r)
	if err != nil {
		return err
	}
	defer dr.Close()

	cr := persistence.NewChecksumReader(dr)
	br := persistence.NewReader(cr)

	if magic := br.Uint32(); br.Err() == nil && magic != nativeMagic {
		return persistence.NewCorruptError(fmt.Sprintf("hnsw: bad magic 0x%08x", magic), nil)
	}
	if version := br.Uint32(); br.Err() == nil && version != nativeVersion {
		return persistence.NewCorruptError(fmt.Sprintf("hnsw: unsupported version %d", version), nil)
	}

	metric := distance.Metric(br.Byte())
	dim := br.Uint64()
	savedCap := br.Uint64()
	m := br.Uint64()
	efc := br.Uint64()
	ef := br.Uint64()
	allow := br.Bool()
	ep := br.Uint64()
	top := int(br.Uint32()) - 1
	count := br.Uint64()
	if err := br.Err(); err != nil {
		return persistence.NewCorruptError("hnsw: truncated header", err)
	}

	if metric != h.cfg.Metric || dim != uint64(h.cfg.Dimension) {
		return fmt.Errorf("%w: saved %v/%d, index %v/%d", ann.ErrIncompatible, metric, dim, h.cfg.Metric, h.cfg.Dimension)
	}
	if m < 2 || m > maxM || top > maxLevel || savedCap > persistence.MaxElements || count > savedCap {
		return persistence.NewCorruptError("hnsw: implausible header", nil)
	}

	// Nodes are collected as they are read; the node table is sized only
	// once the checksum has been verified.
	type placed struct {
		pos  uint64
		node *node
	}
	var loaded []placed
	occupied := roaring64.New()

	for i := uint64(0); i < count; i++ {
		pos := br.Uint64()
		level := int(br.Uint16())
		if br.Err() != nil {
			break
		}
		if pos >= savedCap || occupied.Contains(pos) || level > maxLevel {
			return persistence.NewCorruptError(fmt.Sprintf("hnsw: invalid node at position %d", pos), nil)
		}

		n := &node{
			vector: make([]float32, dim),
			level:  level,
			links:  make([][]uint64, level+1),
		}
		br.Float32SliceInto(n.vector)
		for l := range n.links {
			size := uint64(br.Uint32())
			if br.Err() != nil {
				break
			}
			limit := m
			if l == 0 {
				limit = 2 * m
			}
			if size > limit {
				return persistence.NewCorruptError(fmt.Sprintf("hnsw: %d links at position %d", size, pos), nil)
			}
			n.links[l] = make([]uint64, size)
			br.Uint64SliceInto(n.links[l])
		}
		loaded = append(loaded, placed{pos: pos, node: n})
		occupied.Add(pos)
	}
	if err := br.Err(); err != nil {
		return persistence.NewCorruptError("hnsw: truncated graph", err)
	}

	trailer := persistence.NewReader(dr)
	expected := trailer.Uint32()
	if err := trailer.Err(); err != nil {
		return persistence.NewCorruptError("hnsw: missing checksum", err)
	}
	if err := cr.Verify(expected); err != nil {
		return err
	}

	newCap := max(uint64(max(capacity, 0)), savedCap)
	nodes := make([]*node, newCap)
	for _, p := range loaded {
		nodes[p.pos] = p.node
	}

	if count > 0 && (!occupied.Contains(ep) || top < 0) {
		return persistence.NewCorruptError("hnsw: entry point not stored", nil)
	}
	for _, p := range loaded {
		for _, links := range p.node.links {
			for _, nb := range links {
				if !occupied.Contains(nb) {
					return persistence.NewCorruptError(fmt.Sprintf("hnsw: link to empty position %d", nb), nil)
				}
			}
		}
	}

	h.cfg.Capacity = int(newCap)
	h.cfg.M = int(m)
	h.cfg.EFConstruction = int(efc)
	h.cfg.EF = max(int(ef), 1)
	h.cfg.AllowReplaceDeleted = allow
	h.mmax = int(m)
	h.mmax0 = 2 * int(m)
	h.ml = 1 / math.Log(float64(m))
	h.nodes = nodes
	h.occupied = occupied
	h.ep = ep
	h.top = top
	if count == 0 {
		h.top = -1
	}
	return nil
}
