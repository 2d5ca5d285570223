package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-vqvae"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		require.NoError(t, err)
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("checkpoint payload")
	err = store.Put(ctx, "ckpt/step-000100", data)
	require.NoError(t, err)

	got, err := store.Get(ctx, "ckpt/step-000100")
	require.NoError(t, err)
	require.Equal(t, data, got)

	names, err := store.List(ctx, "ckpt/")
	require.NoError(t, err)
	assert.Contains(t, names, "ckpt/step-000100")

	err = store.Delete(ctx, "ckpt/step-000100")
	require.NoError(t, err)

	_, err = store.Get(ctx, "ckpt/step-000100")
	require.Error(t, err)
}
