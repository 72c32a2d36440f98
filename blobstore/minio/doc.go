// Package minio exports snapshots to a MinIO bucket.
//
// Any S3-compatible server reachable through minio-go works, which makes
// this the sink of choice for on-premise and air-gapped deployments.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	})
//	if err != nil {
//	    return err
//	}
//	store := miniostore.NewStore(client, "roots", "node-1/")
//	if err := store.EnsureBucket(ctx, ""); err != nil {
//	    return err
//	}
//	exporter := hashroot.NewExporter(engine, store)
package minio
