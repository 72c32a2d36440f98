package snapshot

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hupe1980/hashroot/codec"
	"github.com/hupe1980/hashroot/internal/hash"
)

// FileName is the base name of the exported snapshot.
const FileName = "root_hash.json"

// ErrRootMismatch is returned by Verify when the stored root does not match
// the menu.
var ErrRootMismatch = errors.New("snapshot: root hash mismatch")

// MenuEntry is one index entry as exported.
type MenuEntry struct {
	Level int `json:"level"`
	// Timestamp is seconds since the Unix epoch.
	Timestamp float64        `json:"timestamp"`
	Meta      map[string]any `json:"meta"`
}

// Snapshot is the exported state of an engine.
type Snapshot struct {
	RootHash string               `json:"root_hash"`
	Menu     map[string]MenuEntry `json:"menu"`
}

// Seconds converts t to the float form used in menu entries.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Root computes the root hash of a menu: the double SHA-256 of the canonical
// encoding of {hash: {level, meta, timestamp}}. An empty or nil menu hashes
// the empty object.
func Root(menu map[string]MenuEntry) (string, error) {
	doc := make(map[string]any, len(menu))
	for h, e := range menu {
		doc[h] = map[string]any{
			"level":     e.Level,
			"meta":      e.Meta,
			"timestamp": e.Timestamp,
		}
	}
	b, err := codec.Canonical(doc)
	if err != nil {
		return "", err
	}
	return hash.DoubleHex(b), nil
}

// MismatchError carries both roots of a failed verification.
type MismatchError struct {
	Stored   string
	Computed string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("snapshot: stored root %s does not match computed root %s", e.Stored, e.Computed)
}

func (e *MismatchError) Unwrap() error { return ErrRootMismatch }

// Verify recomputes the root from the menu and compares it to RootHash.
func Verify(s Snapshot) error {
	got, err := Root(s.Menu)
	if err != nil {
		return err
	}
	if got != s.RootHash {
		return &MismatchError{Stored: s.RootHash, Computed: got}
	}
	return nil
}

// Item is a menu entry together with its hash.
type Item struct {
	Hash string
	MenuEntry
}

// Items returns the menu ordered by timestamp, ties broken by hash.
func (s Snapshot) Items() []Item {
	items := make([]Item, 0, len(s.Menu))
	for h, e := range s.Menu {
		items = append(items, Item{Hash: h, MenuEntry: e})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Timestamp != items[j].Timestamp {
			return items[i].Timestamp < items[j].Timestamp
		}
		return items[i].Hash < items[j].Hash
	})
	return items
}

// WriteMenu prints one line per menu entry:
//
//	1. HASH 5df6e0e2761f | level=0 | type=data
func WriteMenu(w io.Writer, s Snapshot) error {
	for i, it := range s.Items() {
		short := it.Hash
		if len(short) > 12 {
			short = short[:12]
		}
		typ := "-"
		if v, ok := it.Meta["type"]; ok {
			typ = fmt.Sprint(v)
		}
		if _, err := fmt.Fprintf(w, "%d. HASH %s | level=%d | type=%s\n", i+1, short, it.Level, typ); err != nil {
			return err
		}
	}
	return nil
}

// Encode renders s with cd and compresses it with c. A nil cd means
// codec.Default.
func Encode(s Snapshot, cd codec.Codec, c Compression) ([]byte, error) {
	if s.Menu == nil {
		s.Menu = map[string]MenuEntry{}
	}
	if cd == nil {
		cd = codec.Default
	}
	raw, err := cd.Marshal(s)
	if err != nil {
		return nil, err
	}
	return compress(raw, c)
}

// Decode reverses Encode for any of the built-in codecs. Numbers inside meta
// are kept as json.Number so a verified root matches byte for byte.
func Decode(data []byte, c Compression) (Snapshot, error) {
	raw, err := decompress(data, c)
	if err != nil {
		return Snapshot{}, err
	}

	var s Snapshot
	if err := codec.Default.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}
