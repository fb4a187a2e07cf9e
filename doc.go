// Package contextmemory maps caller-chosen 64-bit ids to the dense positions
// of an approximate nearest-neighbor index and persists both side by side.
//
// # Quick Start
//
//	ctx := context.Background()
//	s, _ := contextmemory.New(128)
//	_ = s.Add(ctx, 42, embedding)
//	results, _ := s.Search(ctx, query, 10)
//	for _, r := range results {
//	    fmt.Println(r.ID, r.Distance)
//	}
//
// # Batches
//
// TryAddBatch never fails as a whole. Each entry is committed or skipped on
// its own, and the committed ids are returned:
//
//	ids := s.TryAddBatch(ctx, entries, true)
//
// With validate set, duplicates and wrong-length vectors are skipped.
// TryAddBatchReport returns the outcome of every entry.
//
// # Persistence
//
// Save writes three artifacts under a prefix: the index's native form
// (prefix.hnsw), the identity map (prefix.hnsw.map) and the configuration
// (prefix.hnsw.meta). Open rebuilds a store from them:
//
//	_ = s.Save(ctx, "./data/docs")
//	s2, _ := contextmemory.Open(ctx, "./data/docs")
//
// Artifacts go to the local filesystem unless WithBlobStore selects another
// backend (memory, MinIO, S3).
//
// # Capacity
//
// The index doubles its capacity when the next position reaches it. Growth
// can be bounded with WithMaxCapacity or a resource.Controller memory
// budget; a failed growth surfaces as *ErrCapacityExceeded.
//
// # Concurrency
//
// A Store is safe for concurrent use. Searches and getters run in parallel;
// every mutation, Save and Load included, runs alone.
package contextmemory
