package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the byte length of a double SHA-256 digest.
const Size = sha256.Size

// HexSize is the length of a hex-encoded digest.
const HexSize = 2 * Size

// DoubleSHA256 returns sha256(sha256(data)).
func DoubleSHA256(data []byte) [Size]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// DoubleHex returns the lowercase hex encoding of DoubleSHA256(data).
func DoubleHex(data []byte) string {
	sum := DoubleSHA256(data)
	return hex.EncodeToString(sum[:])
}

// IsHex reports whether s looks like a DoubleHex digest.
func IsHex(s string) bool {
	if len(s) != HexSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
