package benchmark_test

import (
	"github.com/barca7453/ContextMemory"
	"github.com/barca7453/ContextMemory/ann"
)

// recallAtK compares store results (external ids) with exact positions.
func recallAtK(results []contextmemory.SearchResult, truth []ann.Neighbor, ids []uint64) float64 {
	if len(truth) == 0 {
		return 1
	}

	want := make(map[uint64]struct{}, len(truth))
	for _, n := range truth {
		want[ids[n.Position]] = struct{}{}
	}

	hits := 0
	for _, r := range results {
		if _, ok := want[r.ID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}
