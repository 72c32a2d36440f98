package level

import (
	"fmt"
	"testing"

	"github.com/hupe1980/hashroot/internal/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type added struct {
	level int
	hash  string
	meta  map[string]any
}

type recorder struct{ adds []added }

func (r *recorder) Add(level int, h string, meta map[string]any) {
	r.adds = append(r.adds, added{level: level, hash: h, meta: meta})
}

func (r *recorder) atLevel(level int) []added {
	var out []added
	for _, a := range r.adds {
		if a.level == level {
			out = append(out, a)
		}
	}
	return out
}

func leaf(i int) string { return hash.DoubleHex([]byte(fmt.Sprintf("leaf-%d", i))) }

func dataMeta() map[string]any { return map[string]any{"type": "data"} }

func TestTable_CollapseAtGroupSize(t *testing.T) {
	rec := &recorder{}
	tbl := New(DefaultGroupSize, rec)

	var collapses []Collapse
	for i := range DefaultGroupSize {
		c, err := tbl.Ingest(leaf(i), dataMeta())
		require.NoError(t, err)
		collapses = append(collapses, c...)
	}

	assert.Equal(t, 0, tbl.Len(0))
	assert.Equal(t, 1, tbl.Len(1))
	require.Len(t, collapses, 1)
	assert.Equal(t, 0, collapses[0].From)
	assert.Equal(t, DefaultGroupSize, collapses[0].Count)

	ups := rec.atLevel(1)
	require.Len(t, ups, 1)
	assert.Equal(t, map[string]any{"count": DefaultGroupSize}, ups[0].meta)
	assert.Equal(t, collapses[0].Hash, ups[0].hash)
	assert.Len(t, rec.atLevel(0), DefaultGroupSize)
}

func TestTable_BelowGroupSizeDoesNotCollapse(t *testing.T) {
	tbl := New(10, nil)
	for i := range 9 {
		c, err := tbl.Ingest(leaf(i), dataMeta())
		require.NoError(t, err)
		assert.Empty(t, c)
	}
	assert.Equal(t, 9, tbl.Len(0))
	assert.Equal(t, 1, tbl.Levels())
}

func TestTable_Cascade(t *testing.T) {
	const g = 4
	rec := &recorder{}
	tbl := New(g, rec)

	var collapses []Collapse
	for i := range g * g {
		c, err := tbl.Ingest(leaf(i), dataMeta())
		require.NoError(t, err)
		collapses = append(collapses, c...)
	}

	assert.Equal(t, []int{0, 0, 1}, tbl.Sizes())
	assert.Equal(t, 1, tbl.Total())
	require.Len(t, collapses, g+1)

	// The level-1 collapse happens last, after all four level-0 collapses.
	last := collapses[len(collapses)-1]
	assert.Equal(t, 1, last.From)
	assert.Equal(t, g, last.Count)

	top := tbl.Pending(2)
	require.Len(t, top, 1)
	assert.Equal(t, last.Hash, top[0].Hash)
	assert.Equal(t, map[string]any{"count": g}, top[0].Meta)
	assert.Len(t, rec.atLevel(2), 1)
}

func TestTable_CascadeDeep(t *testing.T) {
	const g = 3
	tbl := New(g, nil)
	for i := range g * g * g {
		_, err := tbl.Ingest(leaf(i), dataMeta())
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0, 0, 0, 1}, tbl.Sizes())
}

func TestTable_CollapsedHashIsOrderInvariantWithinGroup(t *testing.T) {
	const g = 5
	forward := New(g, nil)
	backward := New(g, nil)

	var fc, bc []Collapse
	for i := range g {
		c, err := forward.Ingest(leaf(i), dataMeta())
		require.NoError(t, err)
		fc = append(fc, c...)
	}
	for i := g - 1; i >= 0; i-- {
		c, err := backward.Ingest(leaf(i), dataMeta())
		require.NoError(t, err)
		bc = append(bc, c...)
	}

	require.Len(t, fc, 1)
	require.Len(t, bc, 1)
	assert.Equal(t, fc[0].Hash, bc[0].Hash)
}

func TestTable_CollapsedHashFormula(t *testing.T) {
	tbl := New(2, nil)
	a, b := leaf(1), leaf(2)
	if a > b {
		a, b = b, a
	}

	_, err := tbl.Ingest(b, map[string]any{"type": "data"})
	require.NoError(t, err)
	c, err := tbl.Ingest(a, map[string]any{"type": "data"})
	require.NoError(t, err)
	require.Len(t, c, 1)

	doc := fmt.Sprintf(`[[%q,{"type":"data"}],[%q,{"type":"data"}]]`, a, b)
	assert.Equal(t, hash.DoubleHex([]byte(doc)), c[0].Hash)
}

func TestTable_DuplicateLeafCountsOnce(t *testing.T) {
	tbl := New(3, nil)
	for range 5 {
		_, err := tbl.Ingest(leaf(1), dataMeta())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tbl.Len(0))
}

func TestTable_CollapseErrorKeepsGroup(t *testing.T) {
	tbl := New(2, nil)
	_, err := tbl.Ingest(leaf(1), map[string]any{"bad": make(chan int)})
	require.NoError(t, err)
	_, err = tbl.Ingest(leaf(2), dataMeta())
	require.Error(t, err)
	assert.Equal(t, 2, tbl.Len(0))
}

func TestTable_OutOfRangeLevels(t *testing.T) {
	tbl := New(0, nil)
	assert.Equal(t, DefaultGroupSize, tbl.GroupSize())
	assert.Equal(t, 0, tbl.Len(7))
	assert.Nil(t, tbl.Pending(-1))
}
