package hashindex

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestIndex(capacity int, clk *fakeClock, evicted *[]string) *Index {
	return New(func(o *Options) {
		o.Capacity = capacity
		o.Now = clk.Now
		o.OnEvict = func(e Entry, reason EvictReason) {
			if evicted != nil {
				*evicted = append(*evicted, fmt.Sprintf("%s:%s", e.Hash, reason))
			}
		}
	})
}

func TestIndex_CapacityInvariant(t *testing.T) {
	const capacity = 8
	const extra = 3

	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var evicted []string
	ix := newTestIndex(capacity, clk, &evicted)

	for i := range capacity + extra {
		ix.Add(0, fmt.Sprintf("h%02d", i), map[string]any{"type": "data"})
		require.LessOrEqual(t, ix.Len(), capacity)
	}

	assert.Equal(t, capacity, ix.Len())
	for i := range extra {
		_, ok := ix.Get(fmt.Sprintf("h%02d", i))
		assert.False(t, ok, "oldest entry h%02d should be evicted", i)
	}
	for i := extra; i < capacity+extra; i++ {
		_, ok := ix.Get(fmt.Sprintf("h%02d", i))
		assert.True(t, ok)
	}
	assert.Equal(t, []string{"h00:capacity", "h01:capacity", "h02:capacity"}, evicted)
}

func TestIndex_UpdateKeepsInsertionOrder(t *testing.T) {
	clk := &fakeClock{t: time.Unix(100, 0)}
	ix := newTestIndex(3, clk, nil)

	ix.Add(0, "a", nil)
	ix.Add(0, "b", nil)
	ix.Add(0, "c", nil)

	clk.Advance(5 * time.Second)
	ix.Add(1, "a", map[string]any{"count": 2})
	assert.Equal(t, 3, ix.Len())

	e, ok := ix.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, e.Level)
	assert.Equal(t, time.Unix(105, 0), e.Timestamp)

	// "a" is still the oldest by insertion even though it was just refreshed.
	ix.Add(0, "d", nil)
	_, ok = ix.Get("a")
	assert.False(t, ok)

	var order []string
	for _, e := range ix.Entries() {
		order = append(order, e.Hash)
	}
	assert.Equal(t, []string{"b", "c", "d"}, order)
}

func TestIndex_Sweep(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	var evicted []string
	ix := newTestIndex(100, clk, &evicted)

	ix.Add(0, "old", nil)
	clk.Advance(30 * time.Second)
	ix.Add(0, "mid", nil)
	clk.Advance(31 * time.Second)
	ix.Add(0, "new", nil)

	// old is 61s old, mid is 31s, new is 0s.
	removed := ix.Sweep(60 * time.Second)
	assert.Equal(t, 1, removed)
	_, ok := ix.Get("old")
	assert.False(t, ok)
	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, []string{"old:expired"}, evicted)

	// Age equal to the TTL is kept.
	clk.Advance(29 * time.Second)
	assert.Equal(t, 0, ix.Sweep(60*time.Second))

	clk.Advance(time.Second)
	assert.Equal(t, 1, ix.Sweep(60*time.Second))
	_, ok = ix.Get("mid")
	assert.False(t, ok)
}

func TestIndex_SweepThenCapacity(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	ix := newTestIndex(3, clk, nil)

	ix.Add(0, "a", nil)
	clk.Advance(time.Minute)
	ix.Add(0, "b", nil)
	ix.Add(0, "c", nil)

	require.Equal(t, 1, ix.Sweep(30*time.Second))

	// The freed slot is reused without evicting b.
	ix.Add(0, "d", nil)
	assert.Equal(t, 3, ix.Len())
	_, ok := ix.Get("b")
	assert.True(t, ok)

	// Next insert evicts b, the oldest survivor.
	ix.Add(0, "e", nil)
	_, ok = ix.Get("b")
	assert.False(t, ok)
}

func TestIndex_EntriesAreCopies(t *testing.T) {
	ix := New()
	meta := map[string]any{"type": "data"}
	ix.Add(0, "a", meta)

	meta["type"] = "mutated"
	e, _ := ix.Get("a")
	assert.Equal(t, "data", e.Meta["type"])

	entries := ix.Entries()
	entries[0].Meta["type"] = "mutated"
	e, _ = ix.Get("a")
	assert.Equal(t, "data", e.Meta["type"])
}

func TestIndex_Defaults(t *testing.T) {
	ix := New(func(o *Options) { o.Capacity = 0; o.Now = nil })
	assert.Equal(t, DefaultCapacity, ix.Capacity())
	ix.Add(0, "a", nil)
	e, ok := ix.Get("a")
	require.True(t, ok)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "unknown", EvictReason(9).String())
}
