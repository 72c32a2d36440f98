package hashindex

import (
	"maps"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// DefaultCapacity is the default maximum number of live entries.
const DefaultCapacity = 202

// Entry is one tracked digest.
type Entry struct {
	Hash      string
	Level     int
	Meta      map[string]any
	Timestamp time.Time
}

// EvictReason tells why an entry left the index.
type EvictReason int

const (
	// EvictCapacity means the entry was the oldest one when the index was full.
	EvictCapacity EvictReason = iota
	// EvictExpired means the entry was older than the sweep TTL.
	EvictExpired
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Options configures an Index.
type Options struct {
	// Capacity is the maximum number of live entries. Values < 1 select
	// DefaultCapacity.
	Capacity int
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// OnEvict, if set, is called for every removed entry.
	OnEvict func(e Entry, reason EvictReason)
}

type slot struct {
	entry Entry
	seq   uint64
}

// Index is a bounded FIFO hash index.
type Index struct {
	opts    Options
	nextSeq uint64
	live    *roaring64.Bitmap
	bySeq   map[uint64]string
	slots   map[string]*slot
}

// New creates an empty index.
func New(optFns ...func(o *Options)) *Index {
	opts := Options{Capacity: DefaultCapacity, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Capacity < 1 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Index{
		opts:  opts,
		live:  roaring64.New(),
		bySeq: make(map[uint64]string, opts.Capacity),
		slots: make(map[string]*slot, opts.Capacity),
	}
}

// Capacity returns the configured capacity.
func (ix *Index) Capacity() int { return ix.opts.Capacity }

// Len returns the number of live entries.
func (ix *Index) Len() int { return len(ix.slots) }

// Add inserts or updates the entry for hash.
func (ix *Index) Add(level int, hash string, meta map[string]any) {
	e := Entry{
		Hash:      hash,
		Level:     level,
		Meta:      maps.Clone(meta),
		Timestamp: ix.opts.Now(),
	}

	if s, ok := ix.slots[hash]; ok {
		s.entry = e
		return
	}

	for len(ix.slots) >= ix.opts.Capacity {
		ix.remove(ix.live.Minimum(), EvictCapacity)
	}

	seq := ix.nextSeq
	ix.nextSeq++
	ix.live.Add(seq)
	ix.bySeq[seq] = hash
	ix.slots[hash] = &slot{entry: e, seq: seq}
}

// Sweep removes every entry whose age exceeds ttl and returns how many were
// removed.
func (ix *Index) Sweep(ttl time.Duration) int {
	now := ix.opts.Now()

	var expired []uint64
	it := ix.live.Iterator()
	for it.HasNext() {
		seq := it.Next()
		s := ix.slots[ix.bySeq[seq]]
		if now.Sub(s.entry.Timestamp) > ttl {
			expired = append(expired, seq)
		}
	}

	for _, seq := range expired {
		ix.remove(seq, EvictExpired)
	}
	return len(expired)
}

// Get returns the live entry for hash.
func (ix *Index) Get(hash string) (Entry, bool) {
	s, ok := ix.slots[hash]
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(s.entry), true
}

// Entries returns a copy of all live entries in insertion order.
func (ix *Index) Entries() []Entry {
	out := make([]Entry, 0, len(ix.slots))
	it := ix.live.Iterator()
	for it.HasNext() {
		s := ix.slots[ix.bySeq[it.Next()]]
		out = append(out, cloneEntry(s.entry))
	}
	return out
}

func (ix *Index) remove(seq uint64, reason EvictReason) {
	hash := ix.bySeq[seq]
	s := ix.slots[hash]

	ix.live.Remove(seq)
	delete(ix.bySeq, seq)
	delete(ix.slots, hash)

	if ix.opts.OnEvict != nil && s != nil {
		ix.opts.OnEvict(s.entry, reason)
	}
}

func cloneEntry(e Entry) Entry {
	e.Meta = maps.Clone(e.Meta)
	return e
}
