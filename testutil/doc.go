// Package testutil provides helpers for tests and benchmarks of the store
// and its indexes.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(1000, 128)
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.ExactTopK(vecs, query, k, distance.SquaredL2)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
