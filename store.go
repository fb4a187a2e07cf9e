package contextmemory

import (
	"context"
	"sync"

	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/capacity"
	"github.com/barca7453/ContextMemory/distance"
	"github.com/barca7453/ContextMemory/idmap"
	"github.com/barca7453/ContextMemory/persistence"
)

// Config is the store configuration. Everything but EF is fixed once the
// index is built; Capacity only changes through growth.
type Config struct {
	Dimension           int
	Capacity            int
	M                   int
	EFConstruction      int
	EF                  int
	AllowReplaceDeleted bool
	Metric              distance.Metric
}

func (c Config) annConfig() ann.Config {
	return ann.Config{
		Dimension:           c.Dimension,
		Capacity:            c.Capacity,
		M:                   c.M,
		EFConstruction:      c.EFConstruction,
		EF:                  c.EF,
		AllowReplaceDeleted: c.AllowReplaceDeleted,
		Metric:              c.Metric,
	}
}

func (c Config) metadata(reserved int) persistence.Metadata {
	return persistence.Metadata{
		Dimension:           uint64(c.Dimension),
		Capacity:            uint64(c.Capacity),
		M:                   uint64(c.M),
		EFConstruction:      uint64(c.EFConstruction),
		EF:                  uint64(c.EF),
		AllowReplaceDeleted: c.AllowReplaceDeleted,
		ReservedSize:        uint64(reserved),
	}
}

func configFromMetadata(m persistence.Metadata, metric distance.Metric) Config {
	return Config{
		Dimension:           int(m.Dimension),
		Capacity:            int(m.Capacity),
		M:                   int(m.M),
		EFConstruction:      int(m.EFConstruction),
		EF:                  int(m.EF),
		AllowReplaceDeleted: m.AllowReplaceDeleted,
		Metric:              metric,
	}
}

// Store maps caller-chosen ids to dense positions of an ANN index and
// persists both.
//
// A single readers-writer lock guards the identity map, the configuration
// and every call into the index. Search and the getters share it; Add,
// TryAddBatch, Save, Load, Reset and SetEF hold it exclusively for their
// whole duration, I/O included.
type Store struct {
	mu sync.RWMutex

	cfg    Config
	idx    ann.Index
	ids    *idmap.Map
	growth *capacity.Manager
	grown  capacity.GrowEvent // last growth, for logging

	opts options
}

// New creates an empty store for vectors of the given dimension.
func New(dimension int, optFns ...Option) (*Store, error) {
	if dimension <= 0 || dimension > persistence.MaxDimension {
		return nil, &ErrInvalidDimension{Dimension: dimension}
	}

	o := applyOptions(optFns)
	cfg := Config{
		Dimension:           dimension,
		Capacity:            o.capacity,
		M:                   o.m,
		EFConstruction:      o.efConstruction,
		EF:                  o.ef,
		AllowReplaceDeleted: o.allowReplaceDeleted,
		Metric:              o.metric,
	}

	idx, err := o.factory(cfg.annConfig())
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:  cfg,
		idx:  idx,
		ids:  idmap.New(o.reserveChunk),
		opts: o,
	}
	s.growth = s.newGrowth()
	return s, nil
}

// Open creates a store from the artifacts saved under prefix.
func Open(ctx context.Context, prefix string, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)
	s := &Store{
		cfg:  Config{Metric: o.metric},
		opts: o,
	}
	s.growth = s.newGrowth()

	if err := s.Load(ctx, prefix); err != nil {
		return nil, err
	}
	return s, nil
}

// newGrowth builds a capacity manager charging growth against the
// configured resource controller.
func (s *Store) newGrowth() *capacity.Manager {
	return capacity.New(capacity.Options{
		ReserveChunk:  s.opts.reserveChunk,
		MaxCapacity:   s.opts.maxCapacity,
		BytesPerPoint: s.bytesPerPoint(),
		Controller:    s.opts.controller,
		OnGrow: func(e capacity.GrowEvent) {
			s.grown = e
			s.opts.metricsCollector.RecordGrow(e.From, e.To, e.Duration)
		},
	})
}

// bytesPerPoint estimates the memory of one index slot: the vector and a
// full layer-0 adjacency list.
func (s *Store) bytesPerPoint() int64 {
	if s.opts.controller == nil {
		return 0
	}
	return int64(s.cfg.Dimension)*4 + int64(2*s.cfg.M)*8
}

// ensureCapacity makes room for position next in both the index and the
// reverse map. Caller must hold the write lock.
func (s *Store) ensureCapacity(ctx context.Context, next uint64) error {
	from := s.idx.Capacity()
	if err := s.growth.EnsureIndex(next, s.idx); err != nil {
		return &ErrCapacityExceeded{Capacity: from, cause: err}
	}
	if to := s.idx.Capacity(); to != from {
		s.cfg.Capacity = to
		s.opts.logger.LogGrow(ctx, from, to, s.grown.Duration)
	}
	s.growth.EnsureReverse(next, s.ids)
	return nil
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Dimension returns the vector dimensionality.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Dimension
}

// Capacity returns the current index capacity.
func (s *Store) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Capacity
}

// M returns the graph fan-out.
func (s *Store) M() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.M
}

// EFConstruction returns the construction search breadth.
func (s *Store) EFConstruction() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.EFConstruction
}

// EF returns the query search breadth.
func (s *Store) EF() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.EF
}

// AllowReplaceDeleted reports whether deleted slots may be reused.
func (s *Store) AllowReplaceDeleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.AllowReplaceDeleted
}

// Metric returns the distance metric.
func (s *Store) Metric() distance.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Metric
}

// ReservedSize returns the number of reverse-map slots currently reserved.
func (s *Store) ReservedSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids.Reserved()
}

// NextPosition returns the position the next insert will take.
func (s *Store) NextPosition() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids.Next()
}

// Len returns the number of mapped ids.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids.Len()
}

// IndexLen returns the number of points held by the index. It can differ
// from Len after Reset or an unvalidated batch with duplicate ids.
func (s *Store) IndexLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Len()
}

// Forward returns a copy of the id → position map.
func (s *Store) Forward() map[uint64]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids.Forward()
}

// Reverse returns a copy of the position → id table up to NextPosition.
func (s *Store) Reverse() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids.Reverse()
}

// Position returns the position mapped to id.
func (s *Store) Position(id uint64) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids.Position(id)
}

// External returns the id recorded at pos.
func (s *Store) External(pos uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, err := s.ids.External(pos)
	return id, translateError(err)
}

// SetEF changes the query search breadth.
func (s *Store) SetEF(ef int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx.SetEF(ef)
	s.cfg.EF = s.idx.EF()
}

// Reset clears the identity map and the next position. The index keeps its
// points: searching afterwards without a Load returns ErrPositionOutOfRange
// for every hit the cleared map no longer covers.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := s.ids.Len()
	s.ids.Clear()
	s.opts.logger.LogReset(ctx, dropped)
}
