package hashroot

import (
	"context"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
)

// Logger wraps slog.Logger with hashroot-specific context.
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
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithCycle tags log lines with a daemon cycle id.
func (l *Logger) WithCycle(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("cycle", id),
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// LogBatch logs a batch ingestion.
func (l *Logger) LogBatch(ctx context.Context, accepted, skipped int, root string) {
	if skipped > 0 {
		l.WarnContext(ctx, "batch ingested with skipped records",
			"accepted", accepted,
			"skipped", skipped,
			"root", shortHash(root),
		)
	} else {
		l.DebugContext(ctx, "batch ingested",
			"accepted", accepted,
			"root", shortHash(root),
		)
	}
}

// LogCollapse logs one level collapse.
func (l *Logger) LogCollapse(ctx context.Context, from, count int, hash string) {
	l.DebugContext(ctx, "level collapsed",
		"from", from,
		"to", from+1,
		"count", count,
		"hash", shortHash(hash),
	)
}

// LogRejected logs an ingestion that was refused.
func (l *Logger) LogRejected(ctx context.Context, requester string, err error) {
	l.WarnContext(ctx, "ingestion rejected",
		"requester", requester,
		"error", err,
	)
}

// LogEviction logs an index eviction.
func (l *Logger) LogEviction(ctx context.Context, hash string, level int, reason string) {
	l.DebugContext(ctx, "entry evicted",
		"hash", shortHash(hash),
		"level", level,
		"reason", reason,
	)
}

// LogExport logs a snapshot write.
func (l *Logger) LogExport(ctx context.Context, name string, size int, root string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot export failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot exported",
			"name", name,
			"size", humanize.Bytes(uint64(size)),
			"root", shortHash(root),
		)
	}
}

// LogSync logs the outcome of one external sync.
func (l *Logger) LogSync(ctx context.Context, syncer string, root string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot sync failed",
			"syncer", syncer,
			"root", shortHash(root),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot synced",
			"syncer", syncer,
			"root", shortHash(root),
		)
	}
}

// LogLimits logs a scheduler adjustment.
func (l *Logger) LogLimits(ctx context.Context, cpu float64, parallelism, batchSize int) {
	l.DebugContext(ctx, "limits adjusted",
		"cpu", humanize.FtoaWithDigits(cpu, 1),
		"parallelism", parallelism,
		"batch_size", batchSize,
	)
}
