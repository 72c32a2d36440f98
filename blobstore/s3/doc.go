// Package s3 exports snapshots to Amazon S3.
//
//	store, err := s3.New(ctx, "audit-roots",
//	    s3.WithPrefix("node-1/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	exporter := hashroot.NewExporter(engine, store)
//
// Uploads carry a CRC32C checksum. Snapshots above the multipart threshold
// are sent in parts.
package s3
