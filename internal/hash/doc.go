// Package hash holds the digest primitives used across hashroot.
//
// # Double SHA-256
//
// Every leaf, collapsed and root hash is sha256(sha256(data)), rendered as 64
// lowercase hex characters. The second round fixes the exposed digest to a
// hash of a fixed-size input, whatever shape the first-round input had.
//
//	h := hash.DoubleHex(canonicalBytes)
//
// # CRC32-Castagnoli (CRC32C)
//
// CRC32C is used for object-store upload integrity headers only. It is not a
// content address.
package hash
