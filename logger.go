package contextmemory

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with store-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithPrefix adds the store's artifact prefix to the logger.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{
		Logger: l.Logger.With("prefix", prefix),
	}
}

// LogInsert logs a single insert.
func (l *Logger) LogInsert(ctx context.Context, id uint64, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"id", id,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"id", id,
			"dimension", dimension,
		)
	}
}

// LogBatchInsert logs a batch insert. truncated is true when capacity growth
// stopped the batch early.
func (l *Logger) LogBatchInsert(ctx context.Context, count, accepted int, truncated bool) {
	if accepted < count {
		l.WarnContext(ctx, "batch insert skipped entries",
			"total", count,
			"accepted", accepted,
			"skipped", count-accepted,
			"truncated", truncated,
		)
	} else {
		l.InfoContext(ctx, "batch insert completed",
			"count", count,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogSnapshot logs a save of the three artifacts under prefix.
func (l *Logger) LogSnapshot(ctx context.Context, prefix string, entries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"prefix", prefix,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"prefix", prefix,
			"entries", entries,
		)
	}
}

// LogLoad logs a load of the artifacts under prefix.
func (l *Logger) LogLoad(ctx context.Context, prefix string, entries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"prefix", prefix,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "store loaded",
			"prefix", prefix,
			"entries", entries,
		)
	}
}

// LogGrow logs an index capacity growth.
func (l *Logger) LogGrow(ctx context.Context, from, to int, took time.Duration) {
	l.InfoContext(ctx, "index grown",
		"from", from,
		"to", to,
		"took", took,
	)
}

// LogReset logs a reset of the identity map.
func (l *Logger) LogReset(ctx context.Context, dropped int) {
	l.WarnContext(ctx, "identity map cleared",
		"dropped", dropped,
	)
}
