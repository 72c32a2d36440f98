package source

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/hashroot/codec"
)

// Generator produces synthetic frame records, one per poll by default.
type Generator struct {
	mu    sync.Mutex
	now   func() time.Time
	count int
	frame int64
}

// NewGenerator returns a generator emitting count records per poll. now may
// be nil.
func NewGenerator(count int, now func() time.Time) *Generator {
	if count <= 0 {
		count = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now, count: count}
}

// Name implements Source.
func (g *Generator) Name() string { return "generator" }

// Poll implements Source.
func (g *Generator) Poll(context.Context) ([]codec.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now()
	out := make([]codec.Record, 0, g.count)
	for range g.count {
		g.frame++
		out = append(out, codec.Record{
			"frame_id":  g.frame,
			"scene":     "auto_generated",
			"timestamp": float64(t.UnixNano()) / float64(time.Second),
			"metadata": map[string]any{
				"color":    "auto",
				"position": []any{0, 0, 0},
			},
		})
	}
	return out, nil
}
