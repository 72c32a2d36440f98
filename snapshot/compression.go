package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Compression selects how encoded snapshots are compressed.
type Compression string

const (
	None Compression = "none"
	Zstd Compression = "zstd"
	LZ4  Compression = "lz4"
	XZ   Compression = "xz"
)

// ParseCompression maps a config value to a Compression. The empty string
// means None.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "", None:
		return None, nil
	case Zstd, LZ4, XZ:
		return c, nil
	default:
		return "", fmt.Errorf("unknown snapshot compression %q", s)
	}
}

// Extension is the suffix appended to FileName.
func (c Compression) Extension() string {
	switch c {
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	case XZ:
		return ".xz"
	default:
		return ""
	}
}

// Name returns the blob name for a snapshot with base name base.
func (c Compression) Name(base string) string { return base + c.Extension() }

// DetectCompression infers the compression from a file name.
func DetectCompression(name string) Compression {
	for _, c := range []Compression{Zstd, LZ4, XZ} {
		if strings.HasSuffix(name, c.Extension()) {
			return c
		}
	}
	return None
}

func compress(raw []byte, c Compression) ([]byte, error) {
	switch c {
	case "", None:
		return raw, nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case XZ:
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot compression %q", string(c))
	}
}

func decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case "", None:
		return data, nil
	case Zstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case LZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	case XZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unknown snapshot compression %q", string(c))
	}
}
