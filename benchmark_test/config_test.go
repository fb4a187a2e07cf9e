package benchmark_test

import (
	"context"
	"testing"

	"github.com/barca7453/ContextMemory"
	"github.com/barca7453/ContextMemory/blobstore"
	"github.com/barca7453/ContextMemory/testutil"
)

// ============================================================================
// Benchmark Configuration
// ============================================================================

const (
	dimSmall  = 128 // Fast CI benchmarks
	dimMedium = 768 // Typical sentence-embedding width
)

const (
	sizeSmall  = 2_000
	sizeMedium = 10_000
)

const benchSeed = 42

// idBase keeps external ids far away from positions.
const idBase = uint64(1) << 40

type benchStore struct {
	*contextmemory.Store
}

func openBenchStore(b *testing.B, dim int, opts ...contextmemory.Option) *benchStore {
	b.Helper()

	opts = append([]contextmemory.Option{
		contextmemory.WithBlobStore(blobstore.NewMemoryStore()),
		contextmemory.WithEF(64),
	}, opts...)

	s, err := contextmemory.New(dim, opts...)
	if err != nil {
		b.Fatal(err)
	}
	return &benchStore{Store: s}
}

// loadData inserts n uniform vectors and returns them together with their ids.
func (s *benchStore) loadData(b *testing.B, n, dim int) ([][]float32, []uint64) {
	b.Helper()

	rng := testutil.NewRNG(benchSeed)
	data := rng.UniformVectors(n, dim)
	ids := make([]uint64, n)
	entries := make([]contextmemory.Entry, n)
	for i, v := range data {
		ids[i] = idBase + uint64(i)
		entries[i] = contextmemory.Entry{ID: ids[i], Vector: v}
	}

	report := s.TryAddBatchReport(context.Background(), entries, true)
	if report.Truncated || len(report.Accepted()) != n {
		b.Fatalf("loaded %d of %d vectors", len(report.Accepted()), n)
	}
	return data, ids
}

func makeQueries(n, dim int) [][]float32 {
	return testutil.NewRNG(benchSeed+1).UniformVectors(n, dim)
}
