package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNG_Deterministic(t *testing.T) {
	a := NewRNG(7)
	b := NewRNG(7)
	assert.Equal(t, a.Records(5), b.Records(5))
	assert.Equal(t, a.Record(3), b.Record(3))

	a.Reset()
	first := a.Bytes(16)
	a.Reset()
	assert.Equal(t, first, a.Bytes(16))
	assert.Equal(t, int64(7), a.Seed())
}

func TestRecords_Distinct(t *testing.T) {
	recs := NewRNG(1).Records(20)
	require.Len(t, recs, 20)
	for i, r := range recs {
		assert.Equal(t, i, r["frame"])
	}
}

func TestReordered_DeepCopy(t *testing.T) {
	in := map[string]any{"b": map[string]any{"y": 1, "x": []any{map[string]any{"q": 2}}}, "a": 3}
	out := Reordered(in)
	assert.Equal(t, in, out)

	out["a"] = 4
	assert.Equal(t, 3, in["a"])
}

func TestClock(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewClock(start)
	assert.Equal(t, start, c.Now())
	c.Advance(time.Second)
	assert.Equal(t, time.Unix(101, 0), c.Now())
}
