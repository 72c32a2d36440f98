// Package hashindex implements the bounded, insertion-ordered hash index.
//
// The index maps a hex digest to its Entry and never holds more than its
// capacity. Inserting a new digest into a full index evicts the oldest
// inserted digest first. Re-adding a live digest refreshes its timestamp,
// level and meta without moving it in eviction order (first write wins).
// Sweep removes entries older than a TTL. Those are the only two ways an
// entry leaves the index.
//
// Insertion order is a roaring64 bitmap of live sequence numbers: the oldest
// entry is the bitmap minimum, and sweeping out of the middle is a plain
// Remove.
//
// Index is not safe for concurrent use; the engine serializes access.
package hashindex
