// Command vqvae trains a vector-quantized variational autoencoder on
// MNIST and writes checkpoints and visualization grids as it goes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vqvae"
	"github.com/hupe1980/vqvae/blobstore"
	"github.com/hupe1980/vqvae/checkpoint"
	"github.com/hupe1980/vqvae/mnist"
	"github.com/hupe1980/vqvae/nn"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type runFlags struct {
	learningRate    float64
	maxSteps        uint64
	latentSize      int
	numCodes        int
	codeSize        int
	encoderLayers   string
	decoderLayers   string
	activation      string
	beta            float64
	decay           float64
	batchSize       int
	dataDir         string
	modelDir        string
	vizSteps        uint64
	checkpointSteps uint64
	keepCheckpoints int
	fakeData        bool
	kmeansInit      bool
	compression     string
	logLevel        string
	logJSON         bool
	seed            int64
}

func newRootCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:           "vqvae",
		Short:         "Train a VQ-VAE on binarized MNIST",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&flags.learningRate, "learning-rate", 0.001, "Initial learning rate")
	f.Uint64Var(&flags.maxSteps, "max-steps", 10000, "Number of training steps to run")
	f.IntVar(&flags.latentSize, "latent-size", 1, "Number of latent variables per image")
	f.IntVar(&flags.numCodes, "num-codes", 64, "Number of discrete codes in the codebook")
	f.IntVar(&flags.codeSize, "code-size", 16, "Dimension of each codebook entry")
	f.StringVar(&flags.encoderLayers, "encoder-layers", "256,128", "Comma-separated encoder hidden layer sizes")
	f.StringVar(&flags.decoderLayers, "decoder-layers", "128,256", "Comma-separated decoder hidden layer sizes")
	f.StringVar(&flags.activation, "activation", string(nn.DefaultActivation), "Hidden-layer activation: elu, relu, tanh or sigmoid")
	f.Float64Var(&flags.beta, "beta", 0.25, "Scaling for the commitment loss")
	f.Float64Var(&flags.decay, "decay", 0.99, "Decay for the EMA codebook update")
	f.IntVar(&flags.batchSize, "batch-size", 128, "Batch size")
	f.StringVar(&flags.dataDir, "data-dir", filepath.Join(os.TempDir(), "vq_vae/data"), "Directory where MNIST is stored")
	f.StringVar(&flags.modelDir, "model-dir", filepath.Join(os.TempDir(), "vq_vae"), "Directory for checkpoints and visualizations")
	f.Uint64Var(&flags.vizSteps, "viz-steps", 500, "Frequency at which to save visualizations")
	f.Uint64Var(&flags.checkpointSteps, "checkpoint-steps", 1000, "Frequency at which to save checkpoints")
	f.IntVar(&flags.keepCheckpoints, "keep-checkpoints", 3, "How many checkpoints to retain (0 keeps all)")
	f.BoolVar(&flags.fakeData, "fake-data", false, "Use random data instead of MNIST")
	f.BoolVar(&flags.kmeansInit, "kmeans-init", false, "Initialize the codebook by clustering the first batch")
	f.StringVar(&flags.compression, "checkpoint-compression", "zstd", "Checkpoint compression: none, lz4 or zstd")
	f.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	f.BoolVar(&flags.logJSON, "log-json", false, "Emit JSON logs")
	f.Int64Var(&flags.seed, "seed", 0, "Random seed (0 uses the current time)")

	return cmd
}

func run(ctx context.Context, flags runFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := buildLogger(flags)
	if err != nil {
		return err
	}

	encoderLayers, err := vqvae.ParseLayers(flags.encoderLayers)
	if err != nil {
		return fmt.Errorf("parse encoder layers: %w", err)
	}
	decoderLayers, err := vqvae.ParseLayers(flags.decoderLayers)
	if err != nil {
		return fmt.Errorf("parse decoder layers: %w", err)
	}

	compression, err := checkpoint.ParseCompression(flags.compression)
	if err != nil {
		return err
	}

	activation, err := nn.ParseActivation(flags.activation)
	if err != nil {
		return err
	}

	seed := flags.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	dataset, err := loadDataset(ctx, flags, rng, logger)
	if err != nil {
		return err
	}

	store, err := blobstore.NewLocalStore(flags.modelDir)
	if err != nil {
		return fmt.Errorf("open model dir: %w", err)
	}
	manager := checkpoint.NewManager(store,
		checkpoint.WithCompression(compression),
		checkpoint.WithKeep(flags.keepCheckpoints),
	)

	cfg := vqvae.Config{
		LearningRate:  float32(flags.learningRate),
		MaxSteps:      flags.maxSteps,
		LatentSize:    flags.latentSize,
		NumCodes:      flags.numCodes,
		CodeSize:      flags.codeSize,
		EncoderLayers: encoderLayers,
		DecoderLayers: decoderLayers,
		Activation:    activation,
		Beta:          float32(flags.beta),
		Decay:         float32(flags.decay),
		BatchSize:     flags.batchSize,
	}

	opts := []vqvae.Option{
		vqvae.WithLogger(logger),
		vqvae.WithRand(rng),
		vqvae.WithCheckpoints(manager, flags.checkpointSteps),
		vqvae.WithVizDir(filepath.Join(flags.modelDir, "viz"), flags.vizSteps),
	}
	if flags.kmeansInit {
		opts = append(opts, vqvae.WithKMeansInit())
	}

	trainer, err := vqvae.New(cfg, dataset.Pixels(), opts...)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "training",
		"steps", flags.maxSteps,
		"batch_size", flags.batchSize,
		"num_codes", flags.numCodes,
		"code_size", flags.codeSize,
		"seed", seed,
	)

	batcher := mnist.NewBatcher(dataset, flags.batchSize, rng)
	if err := trainer.Train(ctx, batcher); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.InfoContext(context.Background(), "interrupted", "step", trainer.StepCount())
			return nil
		}
		return err
	}

	logger.InfoContext(ctx, "training complete", "step", trainer.StepCount())
	return nil
}

func buildLogger(flags runFlags) (*vqvae.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(flags.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", flags.logLevel, err)
	}
	if flags.logJSON {
		return vqvae.NewJSONLogger(level), nil
	}
	return vqvae.NewTextLogger(level), nil
}

func loadDataset(ctx context.Context, flags runFlags, rng *rand.Rand, logger *vqvae.Logger) (*mnist.Dataset, error) {
	if flags.fakeData {
		n := flags.batchSize * 4
		if n < 256 {
			n = 256
		}
		return mnist.Fake(rng, n), nil
	}

	if err := mnist.Download(ctx, flags.dataDir, ""); err != nil {
		return nil, fmt.Errorf("download mnist: %w", err)
	}

	train, _, err := mnist.Load(flags.dataDir)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "dataset loaded",
		"images", train.N,
		"rows", train.Rows,
		"cols", train.Cols,
	)
	return train, nil
}
