package contextmemory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/barca7453/ContextMemory/ann"
)

// Entry is one (id, vector) pair submitted to a batch.
type Entry struct {
	ID     uint64
	Vector []float32
}

// Outcome is the fate of one batch entry.
type Outcome uint8

const (
	// Accepted entries were committed to the index and the identity map.
	Accepted Outcome = iota
	// SkippedDuplicate entries carried an id that was already mapped.
	SkippedDuplicate
	// SkippedDimension entries had the wrong vector length.
	SkippedDimension
	// SkippedIndexError entries were rejected by the index.
	SkippedIndexError
	// SkippedCapacity marks the entry whose capacity growth failed. It ends
	// the batch.
	SkippedCapacity
	// NotAttempted entries came after a capacity failure.
	NotAttempted
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case SkippedDuplicate:
		return "skipped_duplicate"
	case SkippedDimension:
		return "skipped_dimension"
	case SkippedIndexError:
		return "skipped_index_error"
	case SkippedCapacity:
		return "skipped_capacity"
	case NotAttempted:
		return "not_attempted"
	default:
		return fmt.Sprintf("Outcome(%d)", o)
	}
}

// EntryResult reports the outcome of one batch entry. Err is nil for
// Accepted and NotAttempted entries.
type EntryResult struct {
	ID      uint64
	Outcome Outcome
	Err     error
}

// BatchReport is the per-entry result of TryAddBatchReport, in input order.
type BatchReport struct {
	Results []EntryResult

	// Truncated is true when a capacity failure stopped the batch.
	Truncated bool
}

// Accepted returns the committed ids in the order they were attempted.
func (r BatchReport) Accepted() []uint64 {
	ids := make([]uint64, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Outcome == Accepted {
			ids = append(ids, res.ID)
		}
	}
	return ids
}

// Add inserts vec under id.
//
// The index is written before the identity map, so a rejected insert leaves
// no mapping behind. A vector of the wrong length fails before any growth.
func (s *Store) Add(ctx context.Context, id uint64, vec []float32) (err error) {
	start := time.Now()
	defer func() {
		s.opts.metricsCollector.RecordInsert(time.Since(start), err)
		s.opts.logger.LogInsert(ctx, id, len(vec), err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vec) != s.cfg.Dimension {
		return &ErrDimensionMismatch{Expected: s.cfg.Dimension, Actual: len(vec)}
	}
	if s.ids.Contains(id) {
		return &ErrDuplicateID{ID: id}
	}

	pos := s.ids.Next()
	if err := s.ensureCapacity(ctx, pos); err != nil {
		return err
	}
	if err := s.idx.AddPoint(vec, pos); err != nil {
		return &ErrIndexInsert{ID: id, Position: pos, cause: translateError(err)}
	}
	if _, err := s.ids.Assign(id); err != nil {
		return translateError(err)
	}
	return nil
}

// TryAddBatch inserts entries best-effort and returns the ids that were
// committed, in the order attempted. See TryAddBatchReport for the rules.
func (s *Store) TryAddBatch(ctx context.Context, entries []Entry, validate bool) []uint64 {
	return s.TryAddBatchReport(ctx, entries, validate).Accepted()
}

// TryAddBatchReport inserts entries one at a time, each all-or-nothing.
//
// Entries with the wrong vector length are always skipped. With validate,
// ids that are already mapped (including earlier in the same batch) are
// skipped as well. Without validate they are inserted again: the forward
// map then points at the new position while the old reverse slot keeps the
// id.
//
// An entry the index rejects is skipped and the batch continues. A capacity
// growth failure stops the batch; entries committed before it stay.
func (s *Store) TryAddBatchReport(ctx context.Context, entries []Entry, validate bool) BatchReport {
	report := BatchReport{Results: make([]EntryResult, len(entries))}
	if len(entries) == 0 {
		return report
	}

	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := 0
	for i, e := range entries {
		res := &report.Results[i]
		res.ID = e.ID

		if report.Truncated {
			res.Outcome = NotAttempted
			continue
		}

		outcome, err := s.addEntry(ctx, e, validate)
		res.Outcome, res.Err = outcome, err
		switch outcome {
		case Accepted:
			accepted++
		case SkippedCapacity:
			report.Truncated = true
		}
	}

	s.opts.metricsCollector.RecordBatchInsert(len(entries), len(entries)-accepted, time.Since(start))
	s.opts.logger.LogBatchInsert(ctx, len(entries), accepted, report.Truncated)
	return report
}

// addEntry performs one batch insert. Caller must hold the write lock.
func (s *Store) addEntry(ctx context.Context, e Entry, validate bool) (Outcome, error) {
	if len(e.Vector) != s.cfg.Dimension {
		return SkippedDimension, &ErrDimensionMismatch{Expected: s.cfg.Dimension, Actual: len(e.Vector)}
	}
	if validate && s.ids.Contains(e.ID) {
		return SkippedDuplicate, &ErrDuplicateID{ID: e.ID}
	}

	pos := s.ids.Next()
	if err := s.ensureCapacity(ctx, pos); err != nil {
		return SkippedCapacity, err
	}
	if err := s.idx.AddPoint(e.Vector, pos); err != nil {
		var dm *ann.ErrDimensionMismatch
		if errors.As(err, &dm) {
			return SkippedDimension, translateError(err)
		}
		return SkippedIndexError, &ErrIndexInsert{ID: e.ID, Position: pos, cause: translateError(err)}
	}
	if _, err := s.ids.Overwrite(e.ID); err != nil {
		return SkippedIndexError, translateError(err)
	}
	return Accepted, nil
}
