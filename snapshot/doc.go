// Package snapshot defines the exported state of an engine and its on-disk
// encoding.
//
// A snapshot holds the root hash and the menu: every live index entry keyed by
// hash. The root is the double SHA-256 of the canonical encoding of the menu,
// so a snapshot can be verified on its own with Verify.
//
//	{
//	  "root_hash": "<64 hex chars>",
//	  "menu": {
//	    "<hash>": {"level": 0, "timestamp": 1700000000.5, "meta": {...}}
//	  }
//	}
//
// Encoded snapshots are indented JSON, optionally compressed with zstd, lz4
// or xz. The compression is reflected in the file extension.
package snapshot
