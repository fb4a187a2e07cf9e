package contextmemory

import (
	"context"
	"time"
)

// SearchResult is a single nearest neighbor.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// Search returns up to k ids closest to query, closest first. Fewer than k
// results come back when the index holds fewer points.
func (s *Store) Search(ctx context.Context, query []float32, k int) (results []SearchResult, err error) {
	start := time.Now()
	defer func() {
		s.opts.metricsCollector.RecordSearch(k, time.Since(start), err)
		s.opts.logger.LogSearch(ctx, k, len(results), err)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.cfg.Dimension {
		return nil, &ErrDimensionMismatch{Expected: s.cfg.Dimension, Actual: len(query)}
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}

	neighbors, err := s.idx.SearchNearest(query, k)
	if err != nil {
		return nil, translateError(err)
	}

	results = make([]SearchResult, len(neighbors))
	for i, n := range neighbors {
		id, err := s.ids.External(n.Position)
		if err != nil {
			return nil, translateError(err)
		}
		results[i] = SearchResult{ID: id, Distance: n.Distance}
	}
	return results, nil
}
