package flat

import (
	"bytes"
	"testing"

	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/distance"
	"github.com/barca7453/ContextMemory/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlat(t *testing.T, metric distance.Metric, capacity int, optFns ...func(o *Options)) *Flat {
	t.Helper()

	f, err := New(ann.Config{Dimension: 2, Capacity: capacity, EF: 10, Metric: metric}, optFns...)
	require.NoError(t, err)
	return f
}

func TestFlat_SearchExact(t *testing.T) {
	f := newFlat(t, distance.MetricL2, 8)
	points := [][]float32{{0, 0}, {5, 5}, {1, 0}, {3, 3}}
	for i, p := range points {
		require.NoError(t, f.AddPoint(p, uint64(i*2)))
	}

	res, err := f.SearchNearest([]float32{0.9, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, uint64(4), res[0].Position)
	assert.Equal(t, uint64(0), res[1].Position)
	assert.Equal(t, uint64(6), res[2].Position)
	assert.InDelta(t, 0.01, res[0].Distance, 1e-6)

	res, err = f.SearchNearest([]float32{0, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, res, 4)
}

func TestFlat_Errors(t *testing.T) {
	f := newFlat(t, distance.MetricL2, 1)

	var dimErr *ann.ErrDimensionMismatch
	require.ErrorAs(t, f.AddPoint([]float32{1}, 0), &dimErr)
	require.NoError(t, f.AddPoint([]float32{1, 1}, 0))
	assert.ErrorIs(t, f.AddPoint([]float32{1, 1}, 0), ann.ErrSlotOccupied)
	assert.ErrorIs(t, f.AddPoint([]float32{1, 1}, 1), ann.ErrCapacityExceeded)
	assert.ErrorIs(t, f.Resize(0), ann.ErrShrink)

	require.NoError(t, f.Resize(2))
	require.NoError(t, f.AddPoint([]float32{2, 2}, 1))
	assert.Equal(t, 2, f.Len())
}

func TestFlat_Cosine(t *testing.T) {
	f := newFlat(t, distance.MetricCosine, 2)
	require.NoError(t, f.AddPoint([]float32{3, 0}, 0))
	require.NoError(t, f.AddPoint([]float32{0, 2}, 1))

	res, err := f.SearchNearest([]float32{0, 9}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res[0].Position)
	assert.InDelta(t, 0, res[0].Distance, 1e-6)

	res, err = f.SearchNearest([]float32{0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestFlat_SaveLoad(t *testing.T) {
	for _, c := range []persistence.Compression{persistence.CompressionNone, persistence.CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			withCompression := func(o *Options) { o.Compression = c }
			src := newFlat(t, distance.MetricL2, 16, withCompression)
			require.NoError(t, src.AddPoint([]float32{1, 2}, 3))
			require.NoError(t, src.AddPoint([]float32{4, 5}, 9))

			var buf bytes.Buffer
			require.NoError(t, src.Save(&buf))

			dst := newFlat(t, distance.MetricL2, 1)
			require.NoError(t, dst.Load(&buf, 32))
			assert.Equal(t, 2, dst.Len())
			assert.Equal(t, 32, dst.Capacity())

			res, err := dst.SearchNearest([]float32{4, 5}, 1)
			require.NoError(t, err)
			assert.Equal(t, uint64(9), res[0].Position)
			assert.Zero(t, res[0].Distance)
		})
	}
}

func TestFlat_LoadCorrupt(t *testing.T) {
	src := newFlat(t, distance.MetricL2, 4)
	require.NoError(t, src.AddPoint([]float32{1, 2}, 0))

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))
	data := buf.Bytes()
	data[len(data)-1] ^= 0xff

	dst := newFlat(t, distance.MetricL2, 4)
	err := dst.Load(bytes.NewReader(data), 4)
	assert.ErrorIs(t, err, persistence.ErrCorrupt)
	assert.Equal(t, 0, dst.Len())

	other := newFlat(t, distance.MetricInnerProduct, 4)
	assert.ErrorIs(t, other.Load(bytes.NewReader(buf.Bytes()), 4), ann.ErrIncompatible)
}
