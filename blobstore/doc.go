// Package blobstore abstracts where a store's artifacts live.
//
// A store writes three artifacts per snapshot (index, mapping and metadata)
// and reads them back on load. BlobStore hides whether those bytes live in a
// directory, in memory, or in an object store.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem; reads are memory-mapped and writes go
//     through a temporary file renamed into place on Close
//   - MemoryStore: in-process map, used by tests
//   - minio.Store: MinIO and other S3-compatible services
//   - s3.Store: Amazon S3 with multipart uploads
package blobstore
