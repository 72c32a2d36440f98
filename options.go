package hashroot

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/hashroot/internal/hashindex"
	"github.com/hupe1980/hashroot/internal/level"
	"github.com/hupe1980/hashroot/policy"
	"github.com/hupe1980/hashroot/resource"
)

// DefaultTTL is how long an index entry lives when WithTTL is not given.
const DefaultTTL = 60 * time.Second

// DefaultAuditEvents is how many recent events Report keeps.
const DefaultAuditEvents = 10

type options struct {
	owner            string
	maxEntries       int
	groupSize        int
	ttl              time.Duration
	now              func() time.Time
	forbiddenLabels  []string
	metricsCollector MetricsCollector
	logger           *Logger
	tracerProvider   trace.TracerProvider
	controller       *resource.Controller
	auditEvents      int
}

// Option configures engine construction.
type Option func(*options)

// WithOwner sets the only requester identity allowed to ingest.
// Default: "OWNER_ONLY".
func WithOwner(owner string) Option {
	return func(o *options) {
		o.owner = owner
	}
}

// WithMaxEntries sets the index capacity. Values <= 0 keep the default (202).
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

// WithGroupSize sets how many hashes a level holds before it collapses.
// Values < 2 keep the default (100).
func WithGroupSize(n int) Option {
	return func(o *options) {
		o.groupSize = n
	}
}

// WithTTL sets the index entry lifetime. Entries older than ttl are swept
// before every ingestion. A ttl <= 0 disables sweeping.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithClock injects the time source used for entry timestamps and TTL.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithForbiddenLabels replaces the biometric guard's label set. An empty
// slice disables the guard.
func WithForbiddenLabels(labels ...string) Option {
	return func(o *options) {
		if labels == nil {
			labels = []string{}
		}
		o.forbiddenLabels = labels
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &hashroot.BasicMetricsCollector{}
//	engine, _ := hashroot.New(hashroot.WithMetricsCollector(metrics))
//	// ... use engine ...
//	stats := metrics.GetStats()
//	fmt.Printf("Batches: %d, Collapses: %d\n", stats.BatchCount, stats.CollapseCount)
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
//	logger := hashroot.NewJSONLogger(slog.LevelInfo)
//	engine, _ := hashroot.New(hashroot.WithLogger(logger))
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

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithController shares an adaptive controller with the engine. Its limits
// decide how batches are sliced and how many slices hash in parallel.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithAuditEvents sets how many recent events Report returns.
func WithAuditEvents(n int) Option {
	return func(o *options) {
		o.auditEvents = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		owner:            policy.DefaultOwnerID,
		maxEntries:       hashindex.DefaultCapacity,
		groupSize:        level.DefaultGroupSize,
		ttl:              DefaultTTL,
		now:              time.Now,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		auditEvents:      DefaultAuditEvents,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.maxEntries <= 0 {
		o.maxEntries = hashindex.DefaultCapacity
	}
	if o.groupSize < 2 {
		o.groupSize = level.DefaultGroupSize
	}
	if o.auditEvents <= 0 {
		o.auditEvents = DefaultAuditEvents
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.controller == nil {
		o.controller = resource.NewController(resource.DefaultConfig())
	}
	return o
}
