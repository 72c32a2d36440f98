package hashroot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/hashroot/codec"
	"github.com/hupe1980/hashroot/resource"
	"github.com/hupe1980/hashroot/source"
)

// DefaultInterval is the pause between daemon cycles.
const DefaultInterval = 10 * time.Second

// DaemonConfig configures the periodic loop.
type DaemonConfig struct {
	// Requester is the identity batches are ingested as.
	Requester string
	// Interval is the pause between cycles. If 0, DefaultInterval.
	Interval time.Duration
	// Sources are polled in order every cycle.
	Sources []source.Source
	// Monitor supplies the load signal. A nil monitor, or one that fails,
	// counts as neutral load.
	Monitor resource.Monitor
}

// CycleResult summarizes one daemon cycle.
type CycleResult struct {
	ID       string
	Load     resource.LoadSignal
	Limits   resource.Limits
	Polled   int
	Batch    BatchResult
	RootHash string
	Exported bool
}

// Daemon polls sources, adapts the engine to load, ingests and exports on a
// fixed interval. A failing or panicking cycle is logged and the next cycle
// is scheduled anyway.
type Daemon struct {
	engine   *Engine
	exporter *Exporter
	cfg      DaemonConfig
	logger   *Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewDaemon creates a daemon. exporter may be nil, in which case cycles only
// ingest.
func NewDaemon(engine *Engine, exporter *Exporter, cfg DaemonConfig) *Daemon {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Requester == "" {
		cfg.Requester = engine.Owner()
	}
	return &Daemon{
		engine:   engine,
		exporter: exporter,
		cfg:      cfg,
		logger:   engine.opts.logger.WithComponent("daemon"),
		stop:     make(chan struct{}),
	}
}

// Run executes cycles until ctx is done or Stop is called. The first cycle
// starts immediately. Run returns ctx.Err() on cancellation and nil after
// Stop.
func (d *Daemon) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := d.RunOnce(ctx); err != nil {
			d.logger.ErrorContext(ctx, "cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop ends Run after the current cycle. It is safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// RunOnce executes a single cycle: sample load, adjust limits, poll every
// source, ingest what was polled and export. Source and ingestion failures
// do not stop the export; all failures are joined into the returned error.
// A panic inside the cycle is recovered and returned as an error.
func (d *Daemon) RunOnce(ctx context.Context) (res CycleResult, err error) {
	res.ID = uuid.NewString()
	log := d.logger.WithCycle(res.ID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle %s panicked: %v\n%s", res.ID, r, debug.Stack())
		}
	}()

	res.Load, _ = resource.Observe(ctx, d.cfg.Monitor)
	res.Limits = d.engine.Adjust(ctx, res.Load)

	var errs []error
	var records []codec.Record
	for _, src := range d.cfg.Sources {
		polled, perr := src.Poll(ctx)
		if perr != nil {
			log.WarnContext(ctx, "source poll failed", "source", src.Name(), "error", perr)
			errs = append(errs, fmt.Errorf("poll %s: %w", src.Name(), perr))
		}
		records = append(records, polled...)
	}
	res.Polled = len(records)

	if len(records) > 0 {
		batch, berr := d.engine.CollectBatch(ctx, d.cfg.Requester, records)
		res.Batch = batch
		if berr != nil {
			errs = append(errs, fmt.Errorf("ingest: %w", berr))
		}
		for _, skipped := range batch.Skipped {
			log.WarnContext(ctx, "record skipped", "index", skipped.Index, "error", skipped.Unwrap())
		}
	}

	if d.exporter != nil {
		snap, xerr := d.exporter.Save(ctx)
		if xerr != nil {
			errs = append(errs, xerr)
		} else {
			res.RootHash = snap.RootHash
			res.Exported = true
		}
	} else {
		root, berr := d.engine.Build()
		if berr != nil {
			errs = append(errs, berr)
		}
		res.RootHash = root
	}

	log.InfoContext(ctx, "cycle complete",
		"polled", res.Polled,
		"accepted", res.Batch.Accepted(),
		"root", shortHash(res.RootHash),
		"parallelism", res.Limits.Parallelism,
		"batch_size", res.Limits.BatchSize,
	)

	return res, errors.Join(errs...)
}
