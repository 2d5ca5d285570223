// Package blobstore provides the storage abstraction behind checkpoint
// persistence.
//
// Store is the interface for reading and writing named blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with atomic writes
//   - MemoryStore: in-memory store for tests
//   - minio.Store: MinIO and other S3-compatible object storage
//   - s3.Store: Amazon S3 with multipart uploads
//   - ThrottledStore: rate-limiting wrapper around any Store
package blobstore
