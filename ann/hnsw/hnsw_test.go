package hnsw

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/distance"
	"github.com/barca7453/ContextMemory/persistence"
	"github.com/barca7453/ContextMemory/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(dim, capacity int) ann.Config {
	return ann.Config{
		Dimension:      dim,
		Capacity:       capacity,
		M:              16,
		EFConstruction: 200,
		EF:             50,
		Metric:         distance.MetricL2,
	}
}

func randomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()
		}
		out[i] = v
	}
	return out
}

func buildIndex(t *testing.T, cfg ann.Config, vectors [][]float32, optFns ...func(o *Options)) *Index {
	t.Helper()

	idx, err := New(cfg, optFns...)
	require.NoError(t, err)
	for i, v := range vectors {
		require.NoError(t, idx.AddPoint(v, uint64(i)))
	}
	return idx
}

func TestIndex_SelfRecall(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	vectors := randomVectors(rng, 300, 8)

	for _, heuristic := range []bool{true, false} {
		idx := buildIndex(t, testConfig(8, 300), vectors, func(o *Options) { o.Heuristic = heuristic })
		assert.Equal(t, 300, idx.Len())

		hits := 0
		for i, v := range vectors {
			res, err := idx.SearchNearest(v, 1)
			require.NoError(t, err)
			require.Len(t, res, 1)
			if res[0].Position == uint64(i) {
				hits++
			}
		}
		assert.GreaterOrEqual(t, hits, 285, "heuristic=%v", heuristic)
	}
}

func TestIndex_SearchOrderedAndBounded(t *testing.T) {
	vectors := [][]float32{{0, 0}, {1, 0}, {2, 0}, {3, 0}}
	idx := buildIndex(t, testConfig(2, 10), vectors)

	res, err := idx.SearchNearest([]float32{0.1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []uint64{0, 1, 2}, []uint64{res[0].Position, res[1].Position, res[2].Position})
	for i := 1; i < len(res); i++ {
		assert.LessOrEqual(t, res[i-1].Distance, res[i].Distance)
	}

	res, err = idx.SearchNearest([]float32{0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, res, 4)
}

func TestIndex_EmptyAndZeroK(t *testing.T) {
	idx, err := New(testConfig(3, 4))
	require.NoError(t, err)

	res, err := idx.SearchNearest([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)

	require.NoError(t, idx.AddPoint([]float32{1, 2, 3}, 0))
	res, err = idx.SearchNearest([]float32{1, 2, 3}, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestIndex_AddPointErrors(t *testing.T) {
	idx, err := New(testConfig(2, 2))
	require.NoError(t, err)

	var dimErr *ann.ErrDimensionMismatch
	err = idx.AddPoint([]float32{1, 2, 3}, 0)
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)

	require.NoError(t, idx.AddPoint([]float32{1, 2}, 0))
	assert.ErrorIs(t, idx.AddPoint([]float32{3, 4}, 0), ann.ErrSlotOccupied)
	assert.ErrorIs(t, idx.AddPoint([]float32{3, 4}, 2), ann.ErrCapacityExceeded)

	_, err = idx.SearchNearest([]float32{1}, 1)
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 1, idx.Len())
}

func TestIndex_Resize(t *testing.T) {
	idx, err := New(testConfig(2, 2))
	require.NoError(t, err)
	require.NoError(t, idx.AddPoint([]float32{0, 0}, 0))
	require.NoError(t, idx.AddPoint([]float32{1, 1}, 1))

	require.NoError(t, idx.Resize(4))
	assert.Equal(t, 4, idx.Capacity())
	require.NoError(t, idx.AddPoint([]float32{2, 2}, 3))

	assert.ErrorIs(t, idx.Resize(3), ann.ErrShrink)
	assert.Equal(t, 4, idx.Capacity())

	res, err := idx.SearchNearest([]float32{2, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res[0].Position)
}

func TestIndex_CosineNormalizes(t *testing.T) {
	cfg := testConfig(2, 4)
	cfg.Metric = distance.MetricCosine
	idx := buildIndex(t, cfg, [][]float32{{3, 0}, {0, 5}})

	res, err := idx.SearchNearest([]float32{10, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res[0].Position)
	assert.InDelta(t, 0, res[0].Distance, 1e-6)

	// Stored vectors are normalized, so a query at 45 degrees is
	// equally far from both.
	res, err = idx.SearchNearest([]float32{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.InDelta(t, res[0].Distance, res[1].Distance, 1e-6)
}

func TestIndex_SetEF(t *testing.T) {
	idx, err := New(testConfig(2, 2))
	require.NoError(t, err)

	idx.SetEF(77)
	assert.Equal(t, 77, idx.EF())
	idx.SetEF(0)
	assert.Equal(t, 1, idx.EF())
}

func TestIndex_SaveLoad(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	vectors := randomVectors(rng, 120, 6)

	for _, c := range []persistence.Compression{persistence.CompressionNone, persistence.CompressionLZ4, persistence.CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			withCompression := func(o *Options) { o.Compression = c }
			src := buildIndex(t, testConfig(6, 150), vectors, withCompression)

			var buf bytes.Buffer
			require.NoError(t, src.Save(&buf))

			dst, err := New(testConfig(6, 10), withCompression)
			require.NoError(t, err)
			require.NoError(t, dst.Load(bytes.NewReader(buf.Bytes()), 10))

			assert.Equal(t, src.Len(), dst.Len())
			assert.Equal(t, 150, dst.Capacity())
			assert.Equal(t, src.EF(), dst.EF())

			for i := 0; i < len(vectors); i += 7 {
				want, err := src.SearchNearest(vectors[i], 5)
				require.NoError(t, err)
				got, err := dst.SearchNearest(vectors[i], 5)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestIndex_LoadGrowsToRequestedCapacity(t *testing.T) {
	src := buildIndex(t, testConfig(2, 4), [][]float32{{1, 1}})

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))

	dst, err := New(testConfig(2, 4))
	require.NoError(t, err)
	require.NoError(t, dst.Load(&buf, 64))
	assert.Equal(t, 64, dst.Capacity())
	require.NoError(t, dst.AddPoint([]float32{2, 2}, 63))
}

func TestIndex_LoadIncompatible(t *testing.T) {
	src := buildIndex(t, testConfig(2, 4), [][]float32{{1, 1}})

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))

	cfg := testConfig(2, 4)
	cfg.Metric = distance.MetricCosine
	dst, err := New(cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, dst.Load(bytes.NewReader(buf.Bytes()), 4), ann.ErrIncompatible)

	dst, err = New(testConfig(3, 4))
	require.NoError(t, err)
	assert.ErrorIs(t, dst.Load(bytes.NewReader(buf.Bytes()), 4), ann.ErrIncompatible)
}

func TestIndex_LoadCorrupt(t *testing.T) {
	src := buildIndex(t, testConfig(2, 8), [][]float32{{0, 0}, {1, 1}, {2, 2}})

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))
	good := buf.Bytes()

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"empty", func([]byte) []byte { return nil }},
		{"bad magic", func(b []byte) []byte { b[1] ^= 0xff; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)/2] }},
		{"no trailer", func(b []byte) []byte { return b[:len(b)-4] }},
		{"bad checksum", func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(bytes.Clone(good))
			dst, err := New(testConfig(2, 8))
			require.NoError(t, err)

			err = dst.Load(bytes.NewReader(data), 8)
			require.Error(t, err)
			assert.ErrorIs(t, err, persistence.ErrCorrupt)
			assert.False(t, errors.Is(err, ann.ErrIncompatible))
			assert.Equal(t, 0, dst.Len())
		})
	}
}

func TestIndex_RecallAgainstExact(t *testing.T) {
	rng := testutil.NewRNG(42)
	vectors := rng.ClusteredVectors(500, 16, 10, 0.2)
	idx := buildIndex(t, testConfig(16, 500), vectors)

	var total float64
	queries := rng.UniformVectors(20, 16)
	for _, q := range queries {
		approx, err := idx.SearchNearest(q, 10)
		require.NoError(t, err)
		total += testutil.ComputeRecall(testutil.ExactTopK(vectors, q, 10, distance.SquaredL2), approx)
	}
	assert.GreaterOrEqual(t, total/float64(len(queries)), 0.9)
}
