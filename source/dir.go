package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/hashroot/codec"
)

// RejectedSuffix is appended to queue files that could not be parsed.
const RejectedSuffix = ".rejected"

// RejectFunc is told about every file moved aside.
type RejectFunc func(path string, err error)

// Dir ingests JSON files dropped into a queue directory.
//
// Each file holds one object or an array of objects. Files are read in name
// order. A parsed file is removed; a malformed one is renamed with
// RejectedSuffix and left for inspection.
type Dir struct {
	path     string
	maxFiles int
	onReject RejectFunc
}

// DirOption configures a Dir.
type DirOption func(*Dir)

// WithMaxFiles caps the number of files consumed per poll.
func WithMaxFiles(n int) DirOption { return func(d *Dir) { d.maxFiles = n } }

// WithRejectHandler installs a callback for rejected files.
func WithRejectHandler(fn RejectFunc) DirOption { return func(d *Dir) { d.onReject = fn } }

// NewDir creates the queue directory if needed.
func NewDir(path string, opts ...DirOption) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	d := &Dir{path: path}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Name implements Source.
func (d *Dir) Name() string { return "dir:" + d.path }

// Poll implements Source.
func (d *Dir) Poll(ctx context.Context) ([]codec.Record, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	if d.maxFiles > 0 && len(files) > d.maxFiles {
		files = files[:d.maxFiles]
	}

	var out []codec.Record
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		path := filepath.Join(d.path, name)
		recs, err := readQueueFile(path)
		if err != nil {
			if rerr := os.Rename(path, path+RejectedSuffix); rerr != nil {
				return out, rerr
			}
			if d.onReject != nil {
				d.onReject(path, err)
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			return out, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func readQueueFile(path string) ([]codec.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}

	switch val := v.(type) {
	case map[string]any:
		return []codec.Record{val}, nil
	case []any:
		out := make([]codec.Record, 0, len(val))
		for i, x := range val {
			rec, ok := x.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, want object", i, x)
			}
			out = append(out, rec)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("top-level value is %T, want object or array", v)
	}
}
