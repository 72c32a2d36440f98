package hashroot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/hashroot/blobstore"
	"github.com/hupe1980/hashroot/codec"
	"github.com/hupe1980/hashroot/resource"
	"github.com/hupe1980/hashroot/snapshot"
	"github.com/hupe1980/hashroot/syncer"
)

// HistoryPrefix is where timestamped snapshot copies are written.
const HistoryPrefix = "history/"

// DefaultSyncRetries is how many times a failed sync is retried.
const DefaultSyncRetries = 3

type exporterOptions struct {
	syncers     []syncer.Syncer
	codec       codec.Codec
	compression snapshot.Compression
	history     bool
	retries     int
	newBackOff  func() backoff.BackOff
	onSyncError func(*ExportSyncError)
}

// ExporterOption configures an Exporter.
type ExporterOption func(*exporterOptions)

// WithSyncers sets the syncers run after every successful write.
func WithSyncers(s ...syncer.Syncer) ExporterOption {
	return func(o *exporterOptions) {
		o.syncers = append(o.syncers, s...)
	}
}

// WithCodec sets the codec snapshot documents are written with. Defaults to
// codec.Default.
func WithCodec(c codec.Codec) ExporterOption {
	return func(o *exporterOptions) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithCompression compresses the written snapshot. The blob name carries the
// matching extension.
func WithCompression(c snapshot.Compression) ExporterOption {
	return func(o *exporterOptions) {
		o.compression = c
	}
}

// WithHistory also writes every snapshot under HistoryPrefix.
func WithHistory(enabled bool) ExporterOption {
	return func(o *exporterOptions) {
		o.history = enabled
	}
}

// WithSyncRetries sets how many times a failed sync is retried. 0 disables
// retries.
func WithSyncRetries(n int) ExporterOption {
	return func(o *exporterOptions) {
		o.retries = max(0, n)
	}
}

// WithSyncBackoff sets the backoff policy between sync retries. The factory
// is called once per sync so every sync starts from a fresh policy.
func WithSyncBackoff(fn func() backoff.BackOff) ExporterOption {
	return func(o *exporterOptions) {
		if fn != nil {
			o.newBackOff = fn
		}
	}
}

// WithSyncErrorHandler is called for every sync that failed after all
// retries.
func WithSyncErrorHandler(fn func(*ExportSyncError)) ExporterOption {
	return func(o *exporterOptions) {
		o.onSyncError = fn
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}

// Exporter writes engine snapshots to a blob store and publishes them to
// external syncers.
//
// The written snapshot is authoritative. Syncs run in the background, one
// round at a time, retried with backoff; their failures are logged and
// counted but never returned by Save and never touch the engine.
type Exporter struct {
	engine *Engine
	store  blobstore.BlobStore
	opts   exporterOptions

	logger  *Logger
	metrics MetricsCollector
	tracer  trace.Tracer
	ctrl    *resource.Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewExporter creates an exporter for engine writing to store. Logging,
// metrics, tracing and sync throttling follow the engine's configuration.
func NewExporter(engine *Engine, store blobstore.BlobStore, optFns ...ExporterOption) *Exporter {
	opts := exporterOptions{
		codec:       codec.Default,
		compression: snapshot.None,
		retries:     DefaultSyncRetries,
		newBackOff:  defaultBackOff,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Exporter{
		engine:  engine,
		store:   store,
		opts:    opts,
		logger:  engine.opts.logger.WithComponent("exporter"),
		metrics: engine.metrics,
		tracer:  engine.tracer,
		ctrl:    engine.ctrl,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Name returns the blob name snapshots are written under.
func (x *Exporter) Name() string {
	return x.opts.compression.Name(snapshot.FileName)
}

// Save exports the engine, writes the snapshot and schedules the syncers.
// It returns once the snapshot is written.
func (x *Exporter) Save(ctx context.Context) (snapshot.Snapshot, error) {
	ctx, span := x.tracer.Start(ctx, "hashroot.Save")
	defer span.End()

	start := time.Now()
	name := x.Name()

	snap, err := x.engine.Export()
	if err != nil {
		return x.fail(ctx, span, snapshot.Snapshot{}, name, 0, start, fmt.Errorf("export: %w", err))
	}

	data, err := snapshot.Encode(snap, x.opts.codec, x.opts.compression)
	if err != nil {
		return x.fail(ctx, span, snap, name, 0, start, fmt.Errorf("encode snapshot: %w", err))
	}

	if err := x.store.Put(ctx, name, data); err != nil {
		return x.fail(ctx, span, snap, name, len(data), start, fmt.Errorf("write snapshot: %w", err))
	}

	if x.opts.history {
		hist := x.opts.compression.Name(fmt.Sprintf("%s%d-%s.json", HistoryPrefix, time.Now().UnixNano(), shortHash(snap.RootHash)))
		if err := x.store.Put(ctx, hist, data); err != nil {
			// The primary snapshot is already in place.
			x.logger.WarnContext(ctx, "snapshot history write failed", "name", hist, "error", err)
		}
	}

	x.metrics.RecordExport(len(data), time.Since(start), nil)
	x.logger.LogExport(ctx, name, len(data), snap.RootHash, nil)
	span.SetAttributes(
		attribute.String("name", name),
		attribute.Int("bytes", len(data)),
		attribute.String("root", snap.RootHash),
		attribute.Int("entries", len(snap.Menu)),
	)

	target := syncer.Target{RootHash: snap.RootHash, Name: name}
	if loc, ok := x.store.(blobstore.Locator); ok {
		target.Path = loc.Path(name)
	}
	x.scheduleSync(ctx, target)

	return snap, nil
}

func (x *Exporter) fail(ctx context.Context, span trace.Span, snap snapshot.Snapshot, name string, size int, start time.Time, err error) (snapshot.Snapshot, error) {
	x.metrics.RecordExport(size, time.Since(start), err)
	x.logger.LogExport(ctx, name, size, snap.RootHash, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "save failed")
	return snap, err
}

// Load reads the last written snapshot back from the store and verifies its
// root against its menu.
func (x *Exporter) Load(ctx context.Context) (snapshot.Snapshot, error) {
	data, err := x.store.Get(ctx, x.Name())
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	snap, err := snapshot.Decode(data, x.opts.compression)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snap, snapshot.Verify(snap)
}

// History returns the names of the stored history copies, oldest first.
func (x *Exporter) History(ctx context.Context) ([]string, error) {
	return x.store.List(ctx, HistoryPrefix)
}

func (x *Exporter) scheduleSync(ctx context.Context, t syncer.Target) {
	if len(x.opts.syncers) == 0 {
		return
	}
	if !x.ctrl.AllowSync() {
		x.logger.DebugContext(ctx, "sync skipped by rate limit", "root", shortHash(t.RootHash))
		return
	}

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		for _, s := range x.opts.syncers {
			x.reportSync(ctx, nil, s.Name(), t.RootHash, ErrExporterClosed)
		}
		return
	}
	x.wg.Add(1)
	x.mu.Unlock()

	go func() {
		defer x.wg.Done()

		// The slot is taken without x.ctx so a sync scheduled before Close
		// still gets its first attempt.
		if err := x.ctrl.AcquireSync(context.Background()); err != nil {
			return
		}
		defer x.ctrl.ReleaseSync()

		for _, s := range x.opts.syncers {
			x.syncOne(s, t)
		}
	}()
}

// syncOne runs s with retries. Attempts run on a context Close does not
// cancel; Close only cuts the waits between attempts short.
func (x *Exporter) syncOne(s syncer.Syncer, t syncer.Target) {
	ctx, span := x.tracer.Start(context.WithoutCancel(x.ctx), "hashroot.Sync",
		trace.WithAttributes(attribute.String("syncer", s.Name())),
	)
	defer span.End()

	var (
		attempts int
		lastErr  error
	)
	attempt := func() (struct{}, error) {
		attempts++
		lastErr = s.Sync(ctx, t)
		if errors.Is(lastErr, syncer.ErrNoLocalPath) {
			return struct{}{}, backoff.Permanent(lastErr)
		}
		return struct{}{}, lastErr
	}

	_, err := backoff.Retry(x.ctx, attempt,
		backoff.WithBackOff(x.opts.newBackOff()),
		backoff.WithMaxTries(uint(x.opts.retries)+1),
	)
	switch {
	case attempts == 0:
		_, err = attempt()
	case err != nil && x.ctx.Err() != nil && lastErr != nil:
		// Close interrupted the backoff; report what the syncer said.
		err = lastErr
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}

	x.reportSync(ctx, span, s.Name(), t.RootHash, err)
}

func (x *Exporter) reportSync(ctx context.Context, span trace.Span, name, root string, err error) {
	x.metrics.RecordSync(name, err)
	x.logger.LogSync(ctx, name, root, err)
	if err == nil {
		return
	}

	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
	}
	if x.opts.onSyncError != nil {
		x.opts.onSyncError(&ExportSyncError{Syncer: name, RootHash: root, cause: err})
	}
}

// Wait blocks until every scheduled sync has finished.
func (x *Exporter) Wait() {
	x.wg.Wait()
}

// Close waits for scheduled syncs to finish. Every scheduled sync makes at
// least one attempt; pending retries are abandoned. Syncs scheduled after
// Close are reported as failed with ErrExporterClosed.
func (x *Exporter) Close() error {
	x.mu.Lock()
	x.closed = true
	x.mu.Unlock()

	x.cancel()
	x.wg.Wait()
	return nil
}
