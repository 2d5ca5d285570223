package blobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeConformance exercises the Store contract against any
// implementation.
func storeConformance(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "ckpt/step-000010", []byte("ten")))
	require.NoError(t, store.Put(ctx, "ckpt/step-000020", []byte("twenty")))
	require.NoError(t, store.Put(ctx, "other/file", []byte("x")))

	data, err := store.Get(ctx, "ckpt/step-000010")
	require.NoError(t, err)
	assert.Equal(t, []byte("ten"), data)

	// Overwrites replace.
	require.NoError(t, store.Put(ctx, "ckpt/step-000010", []byte("ten v2")))
	data, err = store.Get(ctx, "ckpt/step-000010")
	require.NoError(t, err)
	assert.Equal(t, []byte("ten v2"), data)

	names, err := store.List(ctx, "ckpt/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ckpt/step-000010", "ckpt/step-000020"}, names)

	require.NoError(t, store.Delete(ctx, "ckpt/step-000010"))
	_, err = store.Get(ctx, "ckpt/step-000010")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing blob is fine.
	require.NoError(t, store.Delete(ctx, "ckpt/step-000010"))
}

func TestMemoryStore(t *testing.T) {
	storeConformance(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	storeConformance(t, store)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	src := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", src))
	src[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestThrottledStore(t *testing.T) {
	store := NewThrottledStore(NewMemoryStore(), 1024*1024, 64*1024)
	storeConformance(t, store)
}

func TestThrottledStoreLimitsRate(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()

	// 1 KiB/s with a 256-byte burst: writing 512 bytes must wait for
	// at least the budget beyond the initial burst.
	store := NewThrottledStore(inner, 1024, 256)

	start := time.Now()
	require.NoError(t, store.Put(ctx, "k", make([]byte, 512)))
	elapsed := time.Since(start)

	assert.Greater(t, elapsed, 100*time.Millisecond)
}

func TestThrottledStoreRespectsContext(t *testing.T) {
	inner := NewMemoryStore()
	store := NewThrottledStore(inner, 1, 1) // 1 B/s

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := store.Put(ctx, "k", make([]byte, 1024))
	assert.Error(t, err)
}
