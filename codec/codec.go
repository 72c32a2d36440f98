// Package codec centralizes record and snapshot encoding.
//
// Two concerns live here. Codec is the pluggable encoding used for snapshot
// documents written to a sink. Canonical is the fixed encoding every hash in
// hashroot is computed over; changing it changes every leaf and root hash, so
// it is not pluggable.
package codec

// Record is a structured payload handed to the engine for hashing.
type Record = map[string]any

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name, as used by the
// sink.codec configuration key.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "json-indent":
		return IndentJSON{}, true
	default:
		return nil, false
	}
}
