// Package resource holds the adaptive throughput controls of the engine.
//
// The Controller tunes two knobs from an external load signal: how many
// records are hashed per slice (batch size) and how many hashes run at once
// (parallelism). It also bounds background sync work with a semaphore and a
// token-bucket limiter. None of this affects hash values; it only changes
// throughput and latency.
//
// All Controller methods are safe for concurrent use and treat a nil
// *Controller as "defaults, no limits".
package resource

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the tuning bounds.
type Config struct {
	// Parallelism is the initial number of concurrent hash computations.
	Parallelism int
	// MaxParallelism is the ceiling Adjust may raise Parallelism to.
	MaxParallelism int
	// ParallelismStep is how much one Adjust moves Parallelism.
	ParallelismStep int

	// BatchSize is the initial number of records hashed per slice.
	BatchSize int
	// MaxBatchSize is the ceiling Adjust may raise BatchSize to.
	MaxBatchSize int
	// BatchStep is how much one Adjust moves BatchSize.
	BatchStep int

	// HighWater is the CPU percentage above which work is throttled.
	HighWater float64
	// LowWater is the CPU percentage below which work is expanded.
	LowWater float64

	// MaxBackgroundSyncs bounds concurrent sync actions. If 0, defaults to 1.
	MaxBackgroundSyncs int64
	// SyncMinInterval is the minimum spacing between sync actions.
	// If 0, unlimited.
	SyncMinInterval time.Duration
}

// DefaultConfig returns the stock tuning bounds.
func DefaultConfig() Config {
	return Config{
		Parallelism:        5,
		MaxParallelism:     10,
		ParallelismStep:    1,
		BatchSize:          10,
		MaxBatchSize:       20,
		BatchStep:          5,
		HighWater:          80,
		LowWater:           50,
		MaxBackgroundSyncs: 1,
	}
}

// Limits is a snapshot of the current tuning.
type Limits struct {
	Parallelism int
	BatchSize   int
}

// Controller adapts Limits to load and gates background sync work.
type Controller struct {
	cfg Config

	mu     sync.Mutex
	limits Limits

	syncSem     *semaphore.Weighted
	syncLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a controller. Zero fields fall back to DefaultConfig.
func NewController(cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	if cfg.MaxParallelism <= 0 {
		cfg.MaxParallelism = def.MaxParallelism
	}
	if cfg.ParallelismStep <= 0 {
		cfg.ParallelismStep = def.ParallelismStep
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.BatchStep <= 0 {
		cfg.BatchStep = def.BatchStep
	}
	if cfg.HighWater <= 0 {
		cfg.HighWater = def.HighWater
	}
	if cfg.LowWater <= 0 {
		cfg.LowWater = def.LowWater
	}
	if cfg.MaxBackgroundSyncs <= 0 {
		cfg.MaxBackgroundSyncs = def.MaxBackgroundSyncs
	}
	cfg.Parallelism = min(cfg.Parallelism, cfg.MaxParallelism)
	cfg.BatchSize = min(cfg.BatchSize, cfg.MaxBatchSize)

	c := &Controller{
		cfg:     cfg,
		limits:  Limits{Parallelism: cfg.Parallelism, BatchSize: cfg.BatchSize},
		syncSem: semaphore.NewWeighted(cfg.MaxBackgroundSyncs),
	}
	if cfg.SyncMinInterval > 0 {
		c.syncLimiter = rate.NewLimiter(rate.Every(cfg.SyncMinInterval), 1)
	}
	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	if c == nil {
		return DefaultConfig()
	}
	return c.cfg
}

// Limits returns the current tuning.
func (c *Controller) Limits() Limits {
	if c == nil {
		def := DefaultConfig()
		return Limits{Parallelism: def.Parallelism, BatchSize: def.BatchSize}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limits
}

// Adjust moves the limits one step according to sig and returns the result.
// Above HighWater both knobs shrink (floored at 1); below LowWater both grow
// (capped at their ceilings); in between nothing changes.
func (c *Controller) Adjust(sig LoadSignal) Limits {
	if c == nil {
		return c.Limits()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case sig.CPU > c.cfg.HighWater:
		c.limits.Parallelism = max(1, c.limits.Parallelism-c.cfg.ParallelismStep)
		c.limits.BatchSize = max(1, c.limits.BatchSize-c.cfg.BatchStep)
	case sig.CPU < c.cfg.LowWater:
		c.limits.Parallelism = min(c.cfg.MaxParallelism, c.limits.Parallelism+c.cfg.ParallelismStep)
		c.limits.BatchSize = min(c.cfg.MaxBatchSize, c.limits.BatchSize+c.cfg.BatchStep)
	}
	return c.limits
}

// AcquireSync blocks until a background sync slot is free.
func (c *Controller) AcquireSync(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.syncSem.Acquire(ctx, 1)
}

// TryAcquireSync reserves a background sync slot without blocking.
func (c *Controller) TryAcquireSync() bool {
	if c == nil {
		return true
	}
	return c.syncSem.TryAcquire(1)
}

// ReleaseSync releases a slot taken by AcquireSync or TryAcquireSync.
func (c *Controller) ReleaseSync() {
	if c == nil {
		return
	}
	c.syncSem.Release(1)
}

// AllowSync reports whether the sync rate limit permits a sync now.
func (c *Controller) AllowSync() bool {
	if c == nil || c.syncLimiter == nil {
		return true
	}
	return c.syncLimiter.Allow()
}
