package contextmemory

import (
	"log/slog"

	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/ann/hnsw"
	"github.com/barca7453/ContextMemory/blobstore"
	"github.com/barca7453/ContextMemory/capacity"
	"github.com/barca7453/ContextMemory/distance"
	"github.com/barca7453/ContextMemory/resource"
)

// Defaults applied by New.
const (
	DefaultCapacity            = 10000
	DefaultM                   = 16
	DefaultEFConstruction      = 200
	DefaultEF                  = 10
	DefaultAllowReplaceDeleted = true
)

type options struct {
	capacity            int
	m                   int
	efConstruction      int
	ef                  int
	allowReplaceDeleted bool
	metric              distance.Metric

	factory      ann.Factory
	blobStore    blobstore.BlobStore
	controller   *resource.Controller
	reserveChunk int
	maxCapacity  int

	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Store constructor/load behavior.
//
// The graph parameters (capacity, M, EF construction, EF, slot reuse) only
// apply to New. Open and Load take them from the metadata artifact.
type Option func(*options)

// WithCapacity sets the initial index capacity.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithM sets the graph fan-out.
func WithM(m int) Option {
	return func(o *options) {
		o.m = m
	}
}

// WithEFConstruction sets the construction search breadth.
func WithEFConstruction(ef int) Option {
	return func(o *options) {
		o.efConstruction = ef
	}
}

// WithEF sets the initial query search breadth. It can be changed later
// with Store.SetEF.
func WithEF(ef int) Option {
	return func(o *options) {
		o.ef = ef
	}
}

// WithAllowReplaceDeleted records whether deleted slots may be reused.
func WithAllowReplaceDeleted(allow bool) Option {
	return func(o *options) {
		o.allowReplaceDeleted = allow
	}
}

// WithMetric selects the distance metric. The metric is not part of the
// metadata artifact; a store must be reopened with the metric it was built
// with, and the index rejects a mismatch on load.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithIndexFactory configures how the ANN index is constructed.
//
// If nil is passed, the HNSW factory is used.
//
// Example with an exact index:
//
//	s, _ := contextmemory.New(128, contextmemory.WithIndexFactory(flat.Factory()))
func WithIndexFactory(f ann.Factory) Option {
	return func(o *options) {
		if f == nil {
			f = hnsw.Factory()
		}
		o.factory = f
	}
}

// WithBlobStore configures where Save and Load put the artifacts.
// The default is the local filesystem with prefixes used as paths.
//
// Example with S3:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	bs := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "stores/")
//	s, _ := contextmemory.Open(ctx, "docs", contextmemory.WithBlobStore(bs))
func WithBlobStore(bs blobstore.BlobStore) Option {
	return func(o *options) {
		if bs == nil {
			bs = blobstore.NewLocalStore("")
		}
		o.blobStore = bs
	}
}

// WithResourceController bounds the memory charged by index growth, the
// number of concurrent snapshots and the save/load throughput.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithReserveChunk sets how many reverse-map slots are reserved at a time.
func WithReserveChunk(n int) Option {
	return func(o *options) {
		o.reserveChunk = n
	}
}

// WithMaxCapacity caps index growth. 0 means unbounded.
func WithMaxCapacity(n int) Option {
	return func(o *options) {
		o.maxCapacity = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &contextmemory.BasicMetricsCollector{}
//	s, _ := contextmemory.New(128, contextmemory.WithMetricsCollector(metrics))
//	// ... use s ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserts: %d, Avg latency: %dns\n", stats.InsertCount, stats.InsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := contextmemory.NewJSONLogger(slog.LevelInfo)
//	s, _ := contextmemory.New(128, contextmemory.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		capacity:            DefaultCapacity,
		m:                   DefaultM,
		efConstruction:      DefaultEFConstruction,
		ef:                  DefaultEF,
		allowReplaceDeleted: DefaultAllowReplaceDeleted,
		metric:              distance.MetricL2,
		factory:             hnsw.Factory(),
		blobStore:           blobstore.NewLocalStore(""),
		reserveChunk:        capacity.DefaultReserveChunk,
		metricsCollector:    NoopMetricsCollector{},
		logger:              NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
