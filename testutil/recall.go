package testutil

import (
	"cmp"
	"slices"

	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/distance"
)

// ExactTopK scans every vector and returns the k nearest to query, closest
// first. Positions are indexes into vectors.
func ExactTopK(vectors [][]float32, query []float32, k int, dist distance.Func) []ann.Neighbor {
	out := make([]ann.Neighbor, len(vectors))
	for i, v := range vectors {
		out[i] = ann.Neighbor{Position: uint64(i), Distance: dist(query, v)}
	}

	slices.SortStableFunc(out, func(a, b ann.Neighbor) int {
		return cmp.Compare(a.Distance, b.Distance)
	})

	if len(out) > k {
		out = out[:k]
	}
	return out
}

// ComputeRecall returns the fraction of the ground-truth positions found in
// approximate, measured at the shorter of the two lengths.
func ComputeRecall(groundTruth, approximate []ann.Neighbor) float64 {
	if len(groundTruth) == 0 || len(approximate) == 0 {
		if len(groundTruth) == 0 && len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	k := min(len(approximate), len(groundTruth))

	truth := make(map[uint64]struct{}, k)
	for _, n := range groundTruth[:k] {
		truth[n.Position] = struct{}{}
	}

	hits := 0
	for _, n := range approximate[:k] {
		if _, ok := truth[n.Position]; ok {
			hits++
		}
	}

	return float64(hits) / float64(k)
}
