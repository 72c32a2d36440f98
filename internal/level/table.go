// Package level implements the hierarchical collapse of hash groups.
//
// Level 0 holds leaf hashes. When a level's group reaches the group size it
// is replaced by one collapsed hash at the next level:
//
//	collapsed = DoubleHex(Canonical([[hash, meta], ...] sorted by hash))
//
// with meta {"count": groupSize}. Collapsing cascades bottom-up through an
// explicit worklist, so memory per level stays below the group size and the
// call depth stays constant however many levels saturate at once.
package level

import (
	"fmt"
	"slices"

	"github.com/hupe1980/hashroot/codec"
	"github.com/hupe1980/hashroot/internal/hash"
)

// DefaultGroupSize is the number of hashes that saturates a level.
const DefaultGroupSize = 100

// Registrar receives every hash the table tracks, leaves and collapsed.
// The engine passes its bounded index here.
type Registrar interface {
	Add(level int, hash string, meta map[string]any)
}

// Pair is one pending hash and its annotation.
type Pair struct {
	Hash string
	Meta map[string]any
}

// Collapse describes one saturated group replaced by its parent hash.
type Collapse struct {
	// From is the level that was emptied.
	From  int
	Hash  string
	Count int
}

type group struct {
	order []string
	meta  map[string]map[string]any
}

func newGroup() *group {
	return &group{meta: make(map[string]map[string]any)}
}

func (g *group) put(hash string, meta map[string]any) {
	if _, ok := g.meta[hash]; !ok {
		g.order = append(g.order, hash)
	}
	g.meta[hash] = meta
}

func (g *group) len() int { return len(g.order) }

// sorted returns the pairs ordered by hash.
func (g *group) sorted() []Pair {
	pairs := make([]Pair, 0, len(g.order))
	for _, h := range g.order {
		pairs = append(pairs, Pair{Hash: h, Meta: g.meta[h]})
	}
	slices.SortFunc(pairs, func(a, b Pair) int {
		switch {
		case a.Hash < b.Hash:
			return -1
		case a.Hash > b.Hash:
			return 1
		}
		return 0
	})
	return pairs
}

// Table is the level table. It is not safe for concurrent use.
type Table struct {
	groupSize int
	registrar Registrar
	groups    []*group
}

// New creates a table with an empty level 0.
func New(groupSize int, registrar Registrar) *Table {
	if groupSize < 1 {
		groupSize = DefaultGroupSize
	}
	return &Table{
		groupSize: groupSize,
		registrar: registrar,
		groups:    []*group{newGroup()},
	}
}

// GroupSize returns the saturation threshold.
func (t *Table) GroupSize() int { return t.groupSize }

// Ingest adds a leaf hash at level 0 and collapses every level that
// saturates as a result. The returned collapses are in the order they
// happened, lowest level first.
func (t *Table) Ingest(hash string, meta map[string]any) ([]Collapse, error) {
	t.groups[0].put(hash, meta)
	if t.registrar != nil {
		t.registrar.Add(0, hash, meta)
	}
	if t.groups[0].len() < t.groupSize {
		return nil, nil
	}
	return t.cascade(0)
}

func (t *Table) cascade(start int) ([]Collapse, error) {
	var done []Collapse

	stack := []int{start}
	for len(stack) > 0 {
		lvl := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		g := t.groups[lvl]
		if g.len() < t.groupSize {
			continue
		}

		collapsed, err := collapseHash(g.sorted())
		if err != nil {
			return done, fmt.Errorf("collapse level %d: %w", lvl, err)
		}
		count := g.len()
		t.groups[lvl] = newGroup()

		next := lvl + 1
		if next == len(t.groups) {
			t.groups = append(t.groups, newGroup())
		}
		meta := map[string]any{"count": count}
		t.groups[next].put(collapsed, meta)
		if t.registrar != nil {
			t.registrar.Add(next, collapsed, meta)
		}
		done = append(done, Collapse{From: lvl, Hash: collapsed, Count: count})

		if t.groups[next].len() >= t.groupSize {
			stack = append(stack, next)
		}
	}

	return done, nil
}

func collapseHash(pairs []Pair) (string, error) {
	doc := make([]any, len(pairs))
	for i, p := range pairs {
		var meta any
		if p.Meta != nil {
			meta = p.Meta
		}
		doc[i] = []any{p.Hash, meta}
	}
	raw, err := codec.Canonical(doc)
	if err != nil {
		return "", err
	}
	return hash.DoubleHex(raw), nil
}

// Levels returns the number of levels that exist, including empty ones.
func (t *Table) Levels() int { return len(t.groups) }

// Len returns the number of pending hashes at level.
func (t *Table) Len(level int) int {
	if level < 0 || level >= len(t.groups) {
		return 0
	}
	return t.groups[level].len()
}

// Total returns the number of pending hashes across all levels.
func (t *Table) Total() int {
	n := 0
	for _, g := range t.groups {
		n += g.len()
	}
	return n
}

// Sizes returns the pending count per level.
func (t *Table) Sizes() []int {
	out := make([]int, len(t.groups))
	for i, g := range t.groups {
		out[i] = g.len()
	}
	return out
}

// Pending returns the hashes waiting at level, sorted by hash.
func (t *Table) Pending(level int) []Pair {
	if level < 0 || level >= len(t.groups) {
		return nil
	}
	return t.groups[level].sorted()
}
