// Package s3 provides an Amazon S3 implementation of the
// blobstore.Store interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("checkpoints/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// # Features
//
//   - Multipart uploads for large checkpoints
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
