// Package minio stores artifacts in MinIO or any S3-compatible service
// through the MinIO client.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := contextmemory.Open(ctx, "ctx",
//	    contextmemory.WithBlobStore(minioblob.NewStore(client, "my-bucket", "stores/")))
package minio
