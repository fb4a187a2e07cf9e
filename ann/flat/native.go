package flat

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
	nativeMagic   = 0x434d464c // "CMFL"
	nativeVersion = 1
)

// Save writes the native form. The occupied set is serialized with the
// roaring portable format, followed by the vectors in position order.
func (f *Flat) Save(w io.Writer) error {
	cw, err := persistence.NewCompressWriter(w, f.opts.Compression)
	if err != nil {
		return err
	}

	sum := persistence.NewChecksumWriter(cw)
	bw := persistence.NewWriter(sum)
	bw.Uint32(nativeMagic)
	bw.Uint32(nativeVersion)
	bw.Byte(byte(f.cfg.Metric))
	bw.Uint64(uint64(f.cfg.Dimension))
	bw.Uint64(uint64(f.capacity))
	bw.Uint64(uint64(f.cfg.EF))
	bw.Uint64(f.occupied.GetSerializedSizeInBytes())
	if err := bw.Err(); err != nil {
		_ = cw.Close()
		return err
	}
	if _, err := f.occupied.WriteTo(sum); err != nil {
		_ = cw.Close()
		return err
	}

	it := f.occupied.Iterator()
	for it.HasNext() && bw.Err() == nil {
		bw.Float32Slice(f.vector(it.Next()))
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

// Load replaces the contents with a native form written by Save.
func (f *Flat) Load(r io.Reader, capacity int) error {
	dr, err := persistence.NewDecompressReader(r)
	if err != nil {
		return err
	}
	defer dr.Close()

	cr := persistence.NewChecksumReader(dr)
	br := persistence.NewReader(cr)

	if magic := br.Uint32(); br.Err() == nil && magic != nativeMagic {
		return persistence.NewCorruptError(fmt.Sprintf("flat: bad magic 0x%08x", magic), nil)
	}
	if version := br.Uint32(); br.Err() == nil && version != nativeVersion {
		return persistence.NewCorruptError(fmt.Sprintf("flat: unsupported version %d", version), nil)
	}
	metric := distance.Metric(br.Byte())
	dim := br.Uint64()
	savedCap := br.Uint64()
	ef := br.Uint64()
	bitmapSize := br.Uint64()
	if err := br.Err(); err != nil {
		return persistence.NewCorruptError("flat: truncated header", err)
	}
	if metric != f.cfg.Metric || dim != uint64(f.cfg.Dimension) {
		return fmt.Errorf("%w: saved %v/%d, index %v/%d", ann.ErrIncompatible, metric, dim, f.cfg.Metric, f.cfg.Dimension)
	}
	if savedCap > persistence.MaxElements {
		return persistence.NewCorruptError(fmt.Sprintf("flat: saved capacity %d out of range", savedCap), nil)
	}

	occupied := roaring64.New()
	lr := io.LimitReader(cr, int64(min(bitmapSize, math.MaxInt64)))
	if _, err := occupied.ReadFrom(lr); err != nil {
		return persistence.NewCorruptError("flat: invalid occupied set", err)
	}
	if _, err := io.Copy(io.Discard, lr); err != nil {
		return persistence.NewCorruptError("flat: invalid occupied set", err)
	}
	if !occupied.IsEmpty() && occupied.Maximum() >= savedCap {
		return persistence.NewCorruptError("flat: position beyond saved capacity", nil)
	}

	// Vectors are packed in position order as they are read and spread
	// over the slab only once the checksum has been verified.
	var packed []float32
	buf := make([]float32, dim)
	it := occupied.Iterator()
	for it.HasNext() && br.Err() == nil {
		it.Next()
		br.Float32SliceInto(buf)
		if br.Err() == nil {
			packed = append(packed, buf...)
		}
	}
	if err := br.Err(); err != nil {
		return persistence.NewCorruptError("flat: truncated vectors", err)
	}

	trailer := persistence.NewReader(dr)
	expected := trailer.Uint32()
	if err := trailer.Err(); err != nil {
		return persistence.NewCorruptError("flat: missing checksum", err)
	}
	if err := cr.Verify(expected); err != nil {
		return err
	}

	newCap := max(uint64(max(capacity, 0)), savedCap)
	vectors := make([]float32, newCap*dim)
	it = occupied.Iterator()
	for i := uint64(0); it.HasNext(); i++ {
		pos := it.Next()
		copy(vectors[pos*dim:(pos+1)*dim], packed[i*dim:(i+1)*dim])
	}

	f.capacity = int(newCap)
	f.cfg.Capacity = int(newCap)
	f.cfg.EF = int(ef)
	f.vectors = vectors
	f.occupied = occupied
	return nil
}
