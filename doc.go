// Package vqvae trains a vector-quantized variational autoencoder on
// binarized images.
//
// The model is an MLP encoder producing latent code vectors, a
// vector-quantization bottleneck with an EMA-maintained codebook, and
// an MLP decoder parameterizing an independent Bernoulli distribution
// over pixels. Gradients flow through the bottleneck with the
// straight-through estimator; the codebook itself is trained by
// exponential moving averages of the assigned encoder outputs, not by
// gradient descent.
//
// Basic usage:
//
//	cfg := vqvae.DefaultConfig()
//	trainer, err := vqvae.New(cfg, 28*28,
//	    vqvae.WithLogger(vqvae.NewTextLogger(slog.LevelInfo)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	batcher := mnist.NewBatcher(dataset, cfg.BatchSize, rng)
//	if err := trainer.Train(ctx, batcher); err != nil {
//	    log.Fatal(err)
//	}
//
// Checkpointing, visualization and metrics are wired in through
// options; see WithCheckpoints, WithVizDir and WithMetricsCollector.
package vqvae
