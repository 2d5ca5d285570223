package vqvae

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/vqvae/blobstore"
	"github.com/hupe1980/vqvae/checkpoint"
	"github.com/hupe1980/vqvae/mnist"
	"github.com/hupe1980/vqvae/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.01
	cfg.MaxSteps = 10
	cfg.NumCodes = 8
	cfg.CodeSize = 4
	cfg.EncoderLayers = []int{16}
	cfg.DecoderLayers = []int{16}
	cfg.Decay = 0.5
	cfg.BatchSize = 4
	return cfg
}

const testPixels = 16

func testDataset(rng *rand.Rand, n int) *mnist.Dataset {
	images := make([]float32, n*testPixels)
	for i := range images {
		images[i] = rng.Float32()
	}
	return &mnist.Dataset{Images: images, Labels: make([]uint8, n), N: n, Rows: 4, Cols: 4}
}

func binaryBatch(rng *rand.Rand, batch int) *tensor.Tensor {
	data := make([]float32, batch*testPixels)
	for i := range data {
		if rng.Float32() > 0.5 {
			data[i] = 1
		}
	}
	return tensor.FromSlice(data, batch, testPixels)
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Decay = 1.5

	_, err := New(cfg, testPixels)
	var invalid *ErrInvalidConfig
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Decay", invalid.Field)
}

func TestNewRejectsZeroBeta(t *testing.T) {
	cfg := testConfig()
	cfg.Beta = 0

	_, err := New(cfg, testPixels)
	var invalid *ErrInvalidConfig
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Beta", invalid.Field)
}

func TestNewRejectsUnknownActivation(t *testing.T) {
	cfg := testConfig()
	cfg.Activation = "gelu"

	_, err := New(cfg, testPixels)
	var invalid *ErrInvalidConfig
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Activation", invalid.Field)
}

func TestNewRejectsBadPixels(t *testing.T) {
	_, err := New(testConfig(), 0)
	assert.Error(t, err)
}

func TestStepResultRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	trainer, err := New(testConfig(), testPixels, WithRand(rng))
	require.NoError(t, err)

	result, err := trainer.Step(binaryBatch(rng, 4))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), result.Step)
	assert.GreaterOrEqual(t, result.Commitment, float32(0))
	assert.GreaterOrEqual(t, result.Perplexity, 1.0)
	assert.LessOrEqual(t, result.Perplexity, float64(testConfig().NumCodes))
	// Bernoulli negative log likelihood of binary pixels is positive.
	assert.Greater(t, result.Reconstruction, float32(0))
}

func TestStepRejectsWrongWidth(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	trainer, err := New(testConfig(), testPixels, WithRand(rng))
	require.NoError(t, err)

	_, err = trainer.Step(tensor.Zeros(4, testPixels+1))
	assert.Error(t, err)
}

func TestTrainingReducesLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	trainer, err := New(testConfig(), testPixels, WithRand(rng))
	require.NoError(t, err)

	// Repeatedly fitting the same batch must reduce the loss.
	batch := binaryBatch(rng, 4)

	first, err := trainer.Step(batch)
	require.NoError(t, err)

	var last *StepResult
	for i := 0; i < 150; i++ {
		last, err = trainer.Step(batch)
		require.NoError(t, err)
	}

	assert.Less(t, last.Loss, first.Loss)
}

func TestTrainRunsToMaxSteps(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	metrics := &BasicMetricsCollector{}

	cfg := testConfig()
	cfg.MaxSteps = 5

	trainer, err := New(cfg, testPixels, WithRand(rng), WithMetricsCollector(metrics))
	require.NoError(t, err)

	batcher := mnist.NewBatcher(testDataset(rng, 16), cfg.BatchSize, rng)
	require.NoError(t, trainer.Train(context.Background(), batcher))

	assert.Equal(t, uint64(5), trainer.StepCount())
	assert.Equal(t, int64(5), metrics.GetStats().StepCount)
}

func TestTrainRequiresBatcher(t *testing.T) {
	trainer, err := New(testConfig(), testPixels)
	require.NoError(t, err)

	assert.ErrorIs(t, trainer.Train(context.Background(), nil), ErrNoTrainingData)
}

func TestTrainStopsOnCancel(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	trainer, err := New(testConfig(), testPixels, WithRand(rng))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batcher := mnist.NewBatcher(testDataset(rng, 16), 4, rng)
	assert.ErrorIs(t, trainer.Train(ctx, batcher), context.Canceled)
}

func TestCheckpointRestoreRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	cfg := testConfig()

	trainer, err := New(cfg, testPixels, WithRand(rng))
	require.NoError(t, err)

	batch := binaryBatch(rng, 4)
	for i := 0; i < 5; i++ {
		_, err := trainer.Step(batch)
		require.NoError(t, err)
	}

	ckpt := trainer.Checkpoint()
	assert.Equal(t, uint64(5), ckpt.Step)

	restored, err := New(cfg, testPixels, WithRand(rand.New(rand.NewSource(999))))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ckpt))

	assert.Equal(t, uint64(5), restored.StepCount())
	assert.Equal(t, trainer.Codebook().Vectors(), restored.Codebook().Vectors())

	// Identical state must reconstruct identically.
	want, err := trainer.Reconstruct(batch)
	require.NoError(t, err)
	got, err := restored.Reconstruct(batch)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Data())
}

func TestRestoreRejectsMismatchedCodebook(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	trainer, err := New(testConfig(), testPixels, WithRand(rng))
	require.NoError(t, err)

	other := testConfig()
	other.NumCodes = 16
	bigger, err := New(other, testPixels, WithRand(rng))
	require.NoError(t, err)

	var mismatch *ErrCheckpointMismatch
	assert.ErrorAs(t, trainer.Restore(bigger.Checkpoint()), &mismatch)
}

func TestTrainResumesFromCheckpoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	store := blobstore.NewMemoryStore()
	mgr := checkpoint.NewManager(store, checkpoint.WithCompression(checkpoint.CompressionNone))

	cfg := testConfig()
	cfg.MaxSteps = 3

	first, err := New(cfg, testPixels, WithRand(rng), WithCheckpoints(mgr, 0))
	require.NoError(t, err)

	batcher := mnist.NewBatcher(testDataset(rng, 16), cfg.BatchSize, rng)
	require.NoError(t, first.Train(context.Background(), batcher))

	// Second trainer picks up the final checkpoint and has nothing
	// left to do.
	second, err := New(cfg, testPixels, WithRand(rand.New(rand.NewSource(8))), WithCheckpoints(mgr, 0))
	require.NoError(t, err)
	require.NoError(t, second.Train(context.Background(), batcher))

	assert.Equal(t, uint64(3), second.StepCount())
}

func TestTrainWritesVisualizations(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	dir := t.TempDir()

	cfg := testConfig()
	cfg.MaxSteps = 4

	trainer, err := New(cfg, testPixels, WithRand(rng), WithVizDir(dir, 2))
	require.NoError(t, err)

	batcher := mnist.NewBatcher(testDataset(rng, 16), cfg.BatchSize, rng)
	require.NoError(t, trainer.Train(context.Background(), batcher))

	for _, name := range []string{
		"step-000002-inputs.png",
		"step-000002-reconstructions.png",
		"step-000002-samples.png",
		"step-000004-inputs.png",
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestSample(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	trainer, err := New(testConfig(), testPixels, WithRand(rng))
	require.NoError(t, err)

	samples, err := trainer.Sample(3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, testPixels}, samples.Shape())

	for _, v := range samples.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}

	_, err = trainer.Sample(0)
	assert.Error(t, err)
}

func TestKMeansInitSeedsFromFirstBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	trainer, err := New(testConfig(), testPixels, WithRand(rng), WithKMeansInit())
	require.NoError(t, err)

	before := trainer.Codebook().Vectors()

	_, err = trainer.Step(binaryBatch(rng, 4))
	require.NoError(t, err)

	// Codebook was re-seeded, then EMA-updated: it cannot still equal
	// the random init.
	assert.NotEqual(t, before, trainer.Codebook().Vectors())
}
