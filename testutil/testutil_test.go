package testutil

import (
	"testing"

	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformVectors(8, 32)

	require.Len(t, v, 8)
	assert.Len(t, v[0], 32)
	for _, vec := range v {
		for _, x := range vec {
			assert.GreaterOrEqual(t, x, float32(0))
			assert.Less(t, x, float32(1))
		}
	}
}

func TestUnitVector(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVector(32)

	var sum float32
	for _, x := range v {
		sum += x * x
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestClusteredVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.ClusteredVectors(100, 16, 5, 0.1)

	require.Len(t, v, 100)
	assert.Len(t, v[99], 16)
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.UniformVectors(1, 10)
	rng.Reset()
	v2 := rng.UniformVectors(1, 10)

	assert.Equal(t, v1, v2)
}

func TestExactTopK(t *testing.T) {
	vectors := [][]float32{{0, 0}, {5, 5}, {1, 1}, {2, 2}}

	got := ExactTopK(vectors, []float32{0.9, 0.9}, 2, distance.SquaredL2)

	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Position)
	assert.Equal(t, uint64(0), got[1].Position)
	assert.Len(t, ExactTopK(vectors, []float32{0, 0}, 10, distance.SquaredL2), 4)
}

func TestComputeRecall(t *testing.T) {
	truth := []ann.Neighbor{{Position: 1}, {Position: 2}, {Position: 3}, {Position: 4}}

	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
	assert.Equal(t, 0.0, ComputeRecall(truth, nil))
	assert.Equal(t, 0.5, ComputeRecall(truth, []ann.Neighbor{{Position: 4}, {Position: 9}, {Position: 1}, {Position: 8}}))
	assert.Equal(t, 1.0, ComputeRecall(truth, []ann.Neighbor{{Position: 2}, {Position: 1}}))
}
