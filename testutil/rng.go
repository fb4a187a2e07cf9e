package testutil

import (
	"math"
	"math/rand/v2"
	"sync"
)

// RNG is a seeded, goroutine-safe source of test vectors.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed uint64
}

// NewRNG creates a new RNG with the given seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed: seed}
}

// Reset rewinds the RNG to its seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewPCG(r.seed, r.seed^0x9e3779b97f4a7c15))
}

// Uint64 returns a random id.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// FillUniform fills dst with values in [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// UniformVectors returns num vectors with components in [0, 1).
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	data := make([]float32, num*dim)
	r.FillUniform(data)

	out := make([][]float32, num)
	for i := range out {
		out[i] = data[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return out
}

// UnitVector returns a random vector of unit L2 norm.
func (r *RNG) UnitVector(dim int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unitVectorLocked(dim)
}

func (r *RNG) unitVectorLocked(dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		x := r.rand.NormFloat64()
		v[i] = float32(x)
		norm += x * x
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// ClusteredVectors generates vectors scattered around random unit centroids.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	centroids := make([][]float32, clusters)
	for i := range centroids {
		centroids[i] = r.unitVectorLocked(dim)
	}

	out := make([][]float32, num)
	for i := range out {
		c := centroids[i%clusters]
		v := make([]float32, dim)
		for j := range v {
			v[j] = c[j] + float32(r.rand.NormFloat64())*spread
		}
		out[i] = v
	}
	return out
}
