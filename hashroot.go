package hashroot

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/hashroot/codec"
	"github.com/hupe1980/hashroot/internal/hash"
	"github.com/hupe1980/hashroot/internal/hashindex"
	"github.com/hupe1980/hashroot/internal/level"
	"github.com/hupe1980/hashroot/policy"
	"github.com/hupe1980/hashroot/resource"
	"github.com/hupe1980/hashroot/snapshot"
)

const tracerName = "github.com/hupe1980/hashroot"

// DefaultSampleRate is recorded for audio buffers that do not state one.
const DefaultSampleRate = 44100

// Entry is a live index entry.
type Entry = hashindex.Entry

// Audio is a raw audio buffer offered for ingestion.
type Audio struct {
	Data []byte
	// SampleRate defaults to DefaultSampleRate when <= 0.
	SampleRate int
	// Annotations are merged into the entry's metadata. They are checked by
	// the biometric guard but never hashed.
	Annotations map[string]any
}

// BatchResult describes one CollectBatch call.
type BatchResult struct {
	// Root is the root hash after the batch was committed.
	Root string
	// Hashes is aligned with the input; skipped records have "".
	Hashes []string
	// Skipped lists the records that could not be encoded, by input index.
	Skipped []*RecordError
}

// Accepted returns the number of records committed.
func (r BatchResult) Accepted() int {
	return len(r.Hashes) - len(r.Skipped)
}

// Engine aggregates ingested records into a bounded hash index and a level
// table, and derives a root hash from the index on demand.
//
// Hashing of a batch runs in parallel; every mutation of the index and level
// table is serialized through one mutex. Engine is safe for concurrent use.
type Engine struct {
	opts    options
	gate    *policy.Gate
	tracer  trace.Tracer
	logger  *Logger
	metrics MetricsCollector
	ctrl    *resource.Controller

	mu     sync.Mutex
	index  *hashindex.Index
	levels *level.Table
	audit  *auditLog
	closed bool
}

// New creates an engine.
//
// Example:
//
//	engine, err := hashroot.New(
//	    hashroot.WithOwner("alice"),
//	    hashroot.WithMaxEntries(1000),
//	    hashroot.WithTTL(5*time.Minute),
//	)
func New(optFns ...Option) (*Engine, error) {
	opts := applyOptions(optFns)

	gate, err := policy.NewGate(opts.owner, opts.forbiddenLabels)
	if err != nil {
		return nil, translateError(err)
	}

	e := &Engine{
		opts:    opts,
		gate:    gate,
		tracer:  opts.tracerProvider.Tracer(tracerName),
		logger:  opts.logger.WithComponent("engine"),
		metrics: opts.metricsCollector,
		ctrl:    opts.controller,
		audit:   newAuditLog(opts.auditEvents),
	}
	e.index = hashindex.New(func(o *hashindex.Options) {
		o.Capacity = opts.maxEntries
		o.Now = opts.now
		o.OnEvict = e.onEvict
	})
	e.levels = level.New(opts.groupSize, e.index)

	return e, nil
}

// Owner returns the identity allowed to ingest.
func (e *Engine) Owner() string { return e.gate.Owner() }

// Controller returns the adaptive controller the engine slices batches with.
func (e *Engine) Controller() *resource.Controller { return e.ctrl }

// CollectBatch hashes records and commits them in input order as level-0
// entries. Expired entries are swept first.
//
// A requester other than the owner gets ErrAuthorizationDenied and an empty
// result; nothing is hashed and the index is not touched. A record that has
// no canonical encoding is reported in BatchResult.Skipped and the rest of
// the batch continues.
func (e *Engine) CollectBatch(ctx context.Context, requesterID string, records []codec.Record) (BatchResult, error) {
	ctx, span := e.tracer.Start(ctx, "hashroot.CollectBatch",
		trace.WithAttributes(attribute.Int("records", len(records))),
	)
	defer span.End()

	start := time.Now()

	if !e.gate.Authorize(requesterID) {
		e.deny(ctx, span, requesterID)
		return BatchResult{}, ErrAuthorizationDenied
	}

	hashes, skipped, err := e.hashRecords(ctx, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hashing failed")
		return BatchResult{}, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return BatchResult{}, ErrClosed
	}

	e.sweepLocked()

	var commitErr error
	for _, h := range hashes {
		if h == "" {
			continue
		}
		if err := e.ingestLocked(ctx, h, map[string]any{"type": "data"}); err != nil {
			commitErr = err
			break
		}
	}

	now := e.opts.now()
	accepted := len(records) - len(skipped)
	e.audit.record(now, EventBatch, fmt.Sprintf("%d records hashed, %d skipped", accepted, len(skipped)))
	e.audit.check(now, e.levels.Sizes())

	root, rootErr := e.buildLocked()
	e.mu.Unlock()

	if err := firstErr(commitErr, rootErr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return BatchResult{Hashes: hashes, Skipped: skipped}, err
	}

	e.metrics.RecordBatch(accepted, len(skipped), time.Since(start))
	e.logger.LogBatch(ctx, accepted, len(skipped), root)
	span.SetAttributes(
		attribute.Int("accepted", accepted),
		attribute.Int("skipped", len(skipped)),
		attribute.String("root", root),
	)

	return BatchResult{Root: root, Hashes: hashes, Skipped: skipped}, nil
}

// hashRecords computes leaf hashes in slices of the current batch size, with
// at most the current parallelism slices in flight.
func (e *Engine) hashRecords(ctx context.Context, records []codec.Record) ([]string, []*RecordError, error) {
	limits := e.ctrl.Limits()
	hashes := make([]string, len(records))
	failures := make([]error, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limits.Parallelism)

	for lo := 0; lo < len(records); lo += limits.BatchSize {
		hi := min(lo+limits.BatchSize, len(records))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				raw, err := codec.Canonical(records[i])
				if err != nil {
					failures[i] = err
					continue
				}
				hashes[i] = hash.DoubleHex(raw)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var skipped []*RecordError
	for i, err := range failures {
		if err != nil {
			skipped = append(skipped, &RecordError{Index: i, cause: err})
		}
	}
	return hashes, skipped, nil
}

// CollectAudio ingests one raw audio buffer. The leaf hash is the double
// hash of the bytes exactly as given; the metadata
// {type: "audio", sample_rate, length_bytes} plus any annotations is stored
// with the entry but not hashed.
//
// Annotations carrying a forbidden label yield a *PolicyRejectedError and
// nothing is committed.
func (e *Engine) CollectAudio(ctx context.Context, requesterID string, a Audio) (string, error) {
	ctx, span := e.tracer.Start(ctx, "hashroot.CollectAudio",
		trace.WithAttributes(attribute.Int("length_bytes", len(a.Data))),
	)
	defer span.End()

	start := time.Now()

	if !e.gate.Authorize(requesterID) {
		e.deny(ctx, span, requesterID)
		return "", ErrAuthorizationDenied
	}

	meta := audioMeta(a)
	if err := e.gate.Check(meta); err != nil {
		err = translateError(err)
		e.reject(ctx, span, requesterID, err)
		return "", err
	}
	if _, err := codec.Canonical(meta); err != nil {
		err = &RecordError{Index: 0, cause: err}
		e.reject(ctx, span, requesterID, err)
		return "", err
	}

	h := hash.DoubleHex(a.Data)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	e.sweepLocked()
	err := e.ingestLocked(ctx, h, meta)
	now := e.opts.now()
	e.audit.record(now, EventAudio, fmt.Sprintf("audio buffer of %d bytes hashed to %s", len(a.Data), shortHash(h)))
	e.audit.check(now, e.levels.Sizes())
	e.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return h, err
	}

	e.metrics.RecordBatch(1, 0, time.Since(start))
	span.SetAttributes(attribute.String("hash", h))
	return h, nil
}

func audioMeta(a Audio) map[string]any {
	rate := a.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	meta := maps.Clone(a.Annotations)
	if meta == nil {
		meta = make(map[string]any, 3)
	}
	meta["type"] = "audio"
	meta["sample_rate"] = rate
	meta["length_bytes"] = len(a.Data)
	return meta
}

// Build returns the root hash of the current index: the double hash of the
// canonical {hash: {level, meta, timestamp}} document. Calling it twice
// without an intervening mutation yields the same digest.
func (e *Engine) Build() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.buildLocked()
}

// Export returns the root hash together with the full index contents.
func (e *Engine) Export() (snapshot.Snapshot, error) {
	e.mu.Lock()
	menu := e.menuLocked()
	e.mu.Unlock()

	root, err := snapshot.Root(menu)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snapshot.Snapshot{RootHash: root, Menu: menu}, nil
}

// Lookup returns the live index entry for hash.
func (e *Engine) Lookup(hash string) (Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.index.Get(hash)
}

// Entries returns all live index entries, oldest first.
func (e *Engine) Entries() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.index.Entries()
}

// Len returns the number of live index entries.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.index.Len()
}

// LevelSizes returns the number of pending hashes per level.
func (e *Engine) LevelSizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.levels.Sizes()
}

// Report returns the level summary taken at the last ingestion and the most
// recent events.
func (e *Engine) Report() Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.audit.report()
}

// Sweep removes expired entries now and returns how many were removed.
// It is a no-op when the TTL is disabled.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sweepLocked()
}

// Limits returns the controller's current tuning.
func (e *Engine) Limits() resource.Limits {
	return e.ctrl.Limits()
}

// Adjust feeds a load signal to the controller and returns the new tuning.
func (e *Engine) Adjust(ctx context.Context, sig resource.LoadSignal) resource.Limits {
	limits := e.ctrl.Adjust(sig)
	e.logger.LogLimits(ctx, sig.CPU, limits.Parallelism, limits.BatchSize)
	return limits
}

// Close stops ingestion. Reads keep working on the final state.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	return nil
}

func (e *Engine) sweepLocked() int {
	if e.opts.ttl <= 0 {
		return 0
	}
	return e.index.Sweep(e.opts.ttl)
}

func (e *Engine) ingestLocked(ctx context.Context, h string, meta map[string]any) error {
	collapses, err := e.levels.Ingest(h, meta)
	for _, c := range collapses {
		e.metrics.RecordCollapse(c.From)
		e.logger.LogCollapse(ctx, c.From, c.Count, c.Hash)
		e.audit.record(e.opts.now(), EventCollapse,
			fmt.Sprintf("level %d collapsed %d hashes into %s", c.From, c.Count, shortHash(c.Hash)))
	}
	return err
}

func (e *Engine) menuLocked() map[string]snapshot.MenuEntry {
	entries := e.index.Entries()
	menu := make(map[string]snapshot.MenuEntry, len(entries))
	for _, en := range entries {
		menu[en.Hash] = snapshot.MenuEntry{
			Level:     en.Level,
			Timestamp: snapshot.Seconds(en.Timestamp),
			Meta:      en.Meta,
		}
	}
	return menu
}

func (e *Engine) buildLocked() (string, error) {
	return snapshot.Root(e.menuLocked())
}

// onEvict runs inside index mutations, so the engine mutex is already held.
func (e *Engine) onEvict(en hashindex.Entry, reason hashindex.EvictReason) {
	e.metrics.RecordEviction(reason.String())
	e.logger.LogEviction(context.Background(), en.Hash, en.Level, reason.String())

	kind := EventEvicted
	if reason == hashindex.EvictExpired {
		kind = EventExpired
	}
	e.audit.record(e.opts.now(), kind, fmt.Sprintf("level %d hash %s removed (%s)", en.Level, shortHash(en.Hash), reason))
}

func (e *Engine) deny(ctx context.Context, span trace.Span, requesterID string) {
	e.metrics.RecordDenied()
	e.logger.LogRejected(ctx, requesterID, ErrAuthorizationDenied)
	span.SetStatus(codes.Error, "authorization denied")

	e.mu.Lock()
	e.audit.record(e.opts.now(), EventDenied, fmt.Sprintf("requester %q denied", requesterID))
	e.mu.Unlock()
}

func (e *Engine) reject(ctx context.Context, span trace.Span, requesterID string, err error) {
	e.logger.LogRejected(ctx, requesterID, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "rejected")

	e.mu.Lock()
	e.audit.record(e.opts.now(), EventRejected, err.Error())
	e.mu.Unlock()
}

func firstErr(errs ...error) error {
	i := slices.IndexFunc(errs, func(err error) bool { return err != nil })
	if i < 0 {
		return nil
	}
	return errs[i]
}
