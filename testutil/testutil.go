package testutil

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hupe1980/hashroot/codec"
)

// Clock is a manually advanced time source. It is thread-safe.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock stopped at start.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// Records returns n distinct frame records. Frame i carries "frame": i, so
// the records hash to n different leaves.
func (r *RNG) Records(n int) []codec.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]codec.Record, n)
	for i := range out {
		out[i] = codec.Record{
			"frame": i,
			"time":  1_700_000_000 + float64(r.rand.Intn(1_000_000))/1000,
			"scene": fmt.Sprintf("scene-%d", r.rand.Intn(8)),
			"metadata": map[string]any{
				"color":    []any{"red", "green", "blue"}[r.rand.Intn(3)],
				"position": []any{r.rand.Intn(100), r.rand.Intn(100), r.rand.Intn(100)},
			},
		}
	}
	return out
}

// Record returns an arbitrary record nested up to depth levels.
func (r *RNG) Record(depth int) codec.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.objectLocked(depth)
}

func (r *RNG) objectLocked(depth int) map[string]any {
	n := 1 + r.rand.Intn(5)
	out := make(map[string]any, n)
	for range n {
		out[fmt.Sprintf("k%02d", r.rand.Intn(50))] = r.valueLocked(depth)
	}
	return out
}

func (r *RNG) valueLocked(depth int) any {
	kinds := 5
	if depth > 0 {
		kinds = 7
	}
	switch r.rand.Intn(kinds) {
	case 0:
		return nil
	case 1:
		return r.rand.Intn(2) == 1
	case 2:
		return r.rand.Int63n(1 << 40)
	case 3:
		return float64(r.rand.Intn(1_000_000)) / 8
	case 4:
		return fmt.Sprintf("s<%d>&", r.rand.Intn(1000))
	case 5:
		n := r.rand.Intn(4)
		arr := make([]any, n)
		for i := range arr {
			arr[i] = r.valueLocked(depth - 1)
		}
		return arr
	default:
		return r.objectLocked(depth - 1)
	}
}

// Reordered returns a deep copy of rec built by inserting keys in reverse
// sorted order. The copy holds the same keys and values.
func Reordered(rec map[string]any) map[string]any {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] > keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}

	out := make(map[string]any, len(rec))
	for _, k := range keys {
		out[k] = reorderValue(rec[k])
	}
	return out
}

func reorderValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Reordered(val)
	case []any:
		arr := make([]any, len(val))
		for i, x := range val {
			arr[i] = reorderValue(x)
		}
		return arr
	default:
		return val
	}
}
