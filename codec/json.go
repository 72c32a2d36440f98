package codec

import (
	"bytes"
	"encoding/json"
)

// JSON writes compact JSON.
//
// Snapshot documents are small and must stay readable by tools in other
// languages, so JSON is the only built-in format. Both JSON codecs decode
// numbers inside untyped values as json.Number, so a stored menu re-encodes
// to the bytes it was hashed from.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return unmarshalNumbers(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// IndentJSON writes two-space indented JSON. Decoding is identical to JSON.
type IndentJSON struct{}

// Marshal encodes the value to indented JSON.
func (IndentJSON) Marshal(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }

// Unmarshal decodes the JSON data into v.
func (IndentJSON) Unmarshal(data []byte, v any) error { return unmarshalNumbers(data, v) }

// Name returns the unique name of the codec ("json-indent").
func (IndentJSON) Name() string { return "json-indent" }

// Default is the codec used for snapshot documents.
var Default Codec = IndentJSON{}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
