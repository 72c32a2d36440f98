package codec

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"unicode/utf8"
)

// EncodingError reports a value that has no canonical form.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type EncodingError struct {
	// Path locates the offending value, e.g. "$.meta.tags[2]".
	Path   string
	Reason string
	cause  error
}

func (e *EncodingError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("canonical encoding failed at %s: %s: %v", e.Path, e.Reason, e.cause)
	}
	return fmt.Sprintf("canonical encoding failed at %s: %s", e.Path, e.Reason)
}

func (e *EncodingError) Unwrap() error { return e.cause }

// Canonical returns the canonical byte form of v.
//
// The encoding is compact UTF-8 JSON with object keys sorted by byte order at
// every depth, no HTML escaping and no trailing newline. Numbers keep Go's
// shortest round-trip form; json.Number values are emitted verbatim. Two
// records holding the same keys and values always produce identical bytes,
// whatever order the keys were inserted in.
//
// map[any]any values are accepted as long as every key is a string. The
// following yield an *EncodingError, since encoding/json would map distinct
// inputs onto the same bytes:
//
//   - map keys that are not strings, in any map type
//   - strings or keys that are not valid UTF-8
//   - byte slices, which would be indistinguishable from base64 strings
//   - NaN or infinite floats
//
// Values encoding/json cannot represent are rejected as well.
func Canonical(v any) ([]byte, error) {
	n, err := normalize(v, "$")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(n); err != nil {
		return nil, &EncodingError{Path: "$", Reason: "marshal", cause: err}
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func normalize(v any, path string) (any, error) {
	switch val := v.(type) {
	case string:
		if !utf8.ValidString(val) {
			return nil, &EncodingError{Path: path, Reason: "invalid UTF-8"}
		}
		return val, nil
	case []byte:
		return nil, &EncodingError{Path: path, Reason: "byte slices have no canonical form"}
	case nil, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, &EncodingError{Path: path, Reason: "non-finite number"}
		}
		return val, nil
	case float32:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &EncodingError{Path: path, Reason: "non-finite number"}
		}
		return val, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			if !utf8.ValidString(k) {
				return nil, &EncodingError{Path: path, Reason: fmt.Sprintf("key %q is not valid UTF-8", k)}
			}
			n, err := normalize(x, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, &EncodingError{
					Path:   path,
					Reason: fmt.Sprintf("key %v of type %T cannot be ordered", k, k),
				}
			}
			if !utf8.ValidString(ks) {
				return nil, &EncodingError{Path: path, Reason: fmt.Sprintf("key %q is not valid UTF-8", ks)}
			}
			n, err := normalize(x, path+"."+ks)
			if err != nil {
				return nil, err
			}
			out[ks] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			n, err := normalize(x, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return roundTrip(val, path)
	}
}

// roundTrip reduces structs, typed maps and typed slices to the generic
// map/slice/json.Number form so they sort like everything else.
func roundTrip(v any, path string) (any, error) {
	if err := inspect(reflect.ValueOf(v), path, 0); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &EncodingError{Path: path, Reason: fmt.Sprintf("unsupported value of type %T", v), cause: err}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, &EncodingError{Path: path, Reason: "decode", cause: err}
	}
	return out, nil
}

// maxDepth bounds the walk over typed values so pointer cycles fail instead
// of recursing forever.
const maxDepth = 1000

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// inspect applies the checks normalize makes on generic values to typed
// values before encoding/json flattens them. Types with their own marshaler
// define their encoding and are not descended into.
func inspect(v reflect.Value, path string, depth int) error {
	if !v.IsValid() {
		return nil
	}
	if depth > maxDepth {
		return &EncodingError{Path: path, Reason: "nesting too deep"}
	}
	t := v.Type()
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		return nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return inspect(v.Elem(), path, depth+1)
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return &EncodingError{Path: path, Reason: "invalid UTF-8"}
		}
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return &EncodingError{Path: path, Reason: "byte slices have no canonical form"}
		}
		for i := range v.Len() {
			if err := inspect(v.Index(i), fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return &EncodingError{
				Path:   path,
				Reason: fmt.Sprintf("keys of type %s cannot be ordered", t.Key()),
			}
		}
		iter := v.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if !utf8.ValidString(k) {
				return &EncodingError{Path: path, Reason: fmt.Sprintf("key %q is not valid UTF-8", k)}
			}
			if err := inspect(iter.Value(), path+"."+k, depth+1); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("json") == "-" {
				continue
			}
			if err := inspect(v.Field(i), path+"."+f.Name, depth+1); err != nil {
				return err
			}
		}
	case reflect.Float32, reflect.Float64:
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return &EncodingError{Path: path, Reason: "non-finite number"}
		}
	}
	return nil
}
