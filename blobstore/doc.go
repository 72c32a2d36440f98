// Package blobstore holds the sinks a snapshot can be exported to.
//
// Every sink implements BlobStore, a flat namespace of named blobs with
// atomic Put. The exporter writes the current snapshot under a fixed name
// and, with history enabled, a timestamped copy under "history/".
//
// Sinks in this module:
//
//   - LocalStore: one directory, temp file plus rename, guarded by a lock file
//   - MemoryStore: process memory
//   - minio.Store: MinIO or any other S3-compatible server
//   - s3.Store: Amazon S3 with CRC32C checksums and multipart uploads
//   - badger.Store: embedded Badger database
//
// Sinks that keep snapshots as plain files also implement Locator so a
// syncer such as git can find the file on disk.
package blobstore
