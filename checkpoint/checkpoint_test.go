package checkpoint

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/hupe1980/vqvae/blobstore"
	"github.com/hupe1980/vqvae/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCheckpoint(step uint64) *Checkpoint {
	rng := rand.New(rand.NewSource(int64(step)))
	randData := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = rng.Float32()
		}
		return out
	}

	return &Checkpoint{
		Step:      step,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Meta:      map[string]string{"decay": "0.99"},
		Params: []TensorState{
			{Name: "encoder.0.w", Shape: []int{4, 8}, Data: randData(32)},
			{Name: "encoder.0.b", Shape: []int{8}, Data: randData(8)},
		},
		NumCodes: 4,
		CodeSize: 2,
		Codebook: randData(8),
		EMACount: randData(4),
		EMAMeans: randData(8),
	}
}

func TestEncodeDecodeAllCompressions(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(compression.String(), func(t *testing.T) {
			ckpt := sampleCheckpoint(42)

			data, err := Encode(ckpt, nil, compression)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, ckpt, decoded)
		})
	}
}

func TestDecodeIsSelfDescribing(t *testing.T) {
	ckpt := sampleCheckpoint(7)

	// Written with stdlib JSON, decoded without being told so.
	data, err := Encode(ckpt, codec.JSON{}, CompressionLZ4)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ckpt, decoded)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not a checkpoint at all"))
	assert.ErrorIs(t, err, ErrBadFormat)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestDecodeRejectsInconsistentCodebook(t *testing.T) {
	ckpt := sampleCheckpoint(1)
	ckpt.EMACount = ckpt.EMACount[:2] // 2 counts for 4 codes

	data, err := Encode(ckpt, nil, CompressionNone)
	require.NoError(t, err)

	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{
		"none": CompressionNone,
		"":     CompressionNone,
		"lz4":  CompressionLZ4,
		"zstd": CompressionZSTD,
	} {
		got, err := ParseCompression(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseCompression("snappy")
	assert.Error(t, err)
}

func TestManagerSaveLatest(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	mgr := NewManager(store, WithCompression(CompressionLZ4))

	_, err := mgr.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoints)

	for _, step := range []uint64{100, 300, 200} {
		require.NoError(t, mgr.Save(ctx, sampleCheckpoint(step)))
	}

	latest, err := mgr.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), latest.Step)
}

func TestManagerPrunes(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	mgr := NewManager(store, WithKeep(2))

	for step := uint64(1); step <= 5; step++ {
		require.NoError(t, mgr.Save(ctx, sampleCheckpoint(step)))
	}

	names, err := store.List(ctx, "ckpt/")
	require.NoError(t, err)
	require.Len(t, names, 2)

	latest, err := mgr.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), latest.Step)
}

func TestManagerKeepZeroDisablesPruning(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	mgr := NewManager(store, WithKeep(0))

	for step := uint64(1); step <= 5; step++ {
		require.NoError(t, mgr.Save(ctx, sampleCheckpoint(step)))
	}

	names, err := store.List(ctx, "ckpt/")
	require.NoError(t, err)
	assert.Len(t, names, 5)
}
