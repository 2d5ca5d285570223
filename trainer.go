package vqvae

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/hupe1980/vqvae/checkpoint"
	"github.com/hupe1980/vqvae/mnist"
	"github.com/hupe1980/vqvae/nn"
	"github.com/hupe1980/vqvae/quantize"
	"github.com/hupe1980/vqvae/tensor"
	"github.com/hupe1980/vqvae/viz"
)

// Trainer owns the model, the codebook and the optimizer, and runs the
// training loop. It is not safe for concurrent use.
type Trainer struct {
	cfg    Config
	pixels int
	opts   options
	rng    *rand.Rand

	encoder   *nn.Encoder
	decoder   *nn.Decoder
	codebook  *quantize.Codebook
	quantizer *quantize.Quantizer
	ema       *quantize.EMAUpdater
	opt       *nn.Adam
	usage     *quantize.UsageTracker

	step            uint64
	pendingInit     bool // kmeans codebook init from first batch
	usageResetEvery uint64
}

// StepResult carries the scalar outcomes of one optimizer step.
type StepResult struct {
	Step           uint64
	Loss           float32
	Reconstruction float32
	Commitment     float32
	Perplexity     float64
}

// New builds a Trainer for images with the given pixel count.
func New(cfg Config, pixels int, optFns ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pixels <= 0 {
		return nil, &ErrInvalidConfig{Field: "pixels", Value: pixels}
	}

	opts := applyOptions(optFns)
	rng := opts.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// Validate already vetted the name, so the parse cannot fail here.
	activation, _ := nn.ParseActivation(string(cfg.Activation))
	cfg.Activation = activation

	encoder := nn.NewEncoder(rng, pixels, cfg.EncoderLayers, cfg.LatentSize, cfg.CodeSize, nn.WithActivation(activation))
	decoder := nn.NewDecoder(rng, cfg.LatentSize, cfg.CodeSize, cfg.DecoderLayers, pixels, nn.WithActivation(activation))

	codebook, err := quantize.NewCodebook(cfg.NumCodes, cfg.CodeSize, quantize.WithRand(rng))
	if err != nil {
		return nil, err
	}
	ema, err := quantize.NewEMAUpdater(codebook, cfg.Decay, cfg.Epsilon)
	if err != nil {
		return nil, err
	}

	params := append(encoder.Params(), decoder.Params()...)

	return &Trainer{
		cfg:             cfg,
		pixels:          pixels,
		opts:            opts,
		rng:             rng,
		encoder:         encoder,
		decoder:         decoder,
		codebook:        codebook,
		quantizer:       quantize.NewQuantizer(codebook),
		ema:             ema,
		opt:             nn.NewAdam(params, cfg.LearningRate),
		usage:           quantize.NewUsageTracker(cfg.NumCodes),
		pendingInit:     opts.kmeansInit,
		usageResetEvery: opts.logInterval,
	}, nil
}

// Step runs one optimizer step on a [batch, pixels] image tensor:
// encode, quantize, straight-through loss, backprop, Adam update,
// then the EMA codebook update.
func (t *Trainer) Step(images *tensor.Tensor) (*StepResult, error) {
	start := time.Now()
	result, err := t.runStep(images)
	t.opts.metricsCollector.RecordStep(time.Since(start), err)
	return result, err
}

func (t *Trainer) runStep(images *tensor.Tensor) (*StepResult, error) {
	if images.Rank() != 2 || images.Dim(1) != t.pixels {
		actual := 0
		if images.Rank() > 0 {
			actual = images.Dim(-1)
		}
		return nil, &quantize.ErrDimensionMismatch{Expected: t.pixels, Actual: actual}
	}

	codes := t.encoder.Encode(images)

	if t.pendingInit {
		if err := t.initCodebook(codes); err != nil {
			return nil, err
		}
		t.pendingInit = false
	}

	nearest, oneHot, err := t.quantizer.Quantize(codes)
	if err != nil {
		return nil, err
	}

	loss, err := quantize.ComposeLoss(codes, nearest, t.decoder.Decode, images, t.cfg.Beta)
	if err != nil {
		return nil, err
	}

	tensor.Backward(loss.Total)
	t.opt.Step()

	if _, err := t.ema.Update(codes, oneHot); err != nil {
		return nil, err
	}

	t.usage.Observe(quantize.Assignments(oneHot))
	t.step++

	return &StepResult{
		Step:           t.step,
		Loss:           loss.Total.Value(),
		Reconstruction: loss.Reconstruction.Value(),
		Commitment:     loss.Commitment.Value(),
		Perplexity:     quantize.Perplexity(oneHot),
	}, nil
}

// initCodebook re-seeds the codebook by clustering the encoder outputs
// of the first batch.
func (t *Trainer) initCodebook(codes *tensor.Tensor) error {
	seeded, err := quantize.NewCodebook(t.cfg.NumCodes, t.cfg.CodeSize,
		quantize.WithRand(t.rng),
		quantize.WithKMeansInit(codes.Data()),
	)
	if err != nil {
		return err
	}
	return t.codebook.Restore(seeded.Vectors(), seeded.EMACount(), seeded.EMAMeans())
}

// Train runs the loop until MaxSteps or context cancellation. When a
// checkpoint manager is configured, training resumes from the latest
// checkpoint and saves periodically plus once at the end.
func (t *Trainer) Train(ctx context.Context, batcher *mnist.Batcher) error {
	if batcher == nil {
		return ErrNoTrainingData
	}

	if t.opts.checkpoints != nil {
		if err := t.resume(ctx); err != nil {
			return err
		}
	}

	for t.step < t.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			return err
		}

		images := batcher.Next()
		result, err := t.Step(images)
		if err != nil {
			return err
		}

		t.opts.logger.LogStep(ctx, result.Step, result)

		if t.usageResetEvery > 0 && result.Step%t.usageResetEvery == 0 {
			t.opts.logger.LogProgress(ctx, result.Step, result, t.usage.ActiveCodes(), t.cfg.NumCodes)
			t.usage.Reset()
		}

		if t.opts.checkpoints != nil && t.opts.checkpointInterval > 0 && result.Step%t.opts.checkpointInterval == 0 {
			t.saveCheckpoint(ctx)
		}

		if t.opts.vizDir != "" && t.opts.vizInterval > 0 && result.Step%t.opts.vizInterval == 0 {
			t.saveViz(ctx, images)
		}
	}

	if t.opts.checkpoints != nil {
		if err := t.saveCheckpoint(ctx); err != nil {
			return err
		}
	}
	return nil
}

// resume restores the latest checkpoint, if any.
func (t *Trainer) resume(ctx context.Context) error {
	ckpt, err := t.opts.checkpoints.Latest(ctx)
	if errors.Is(err, checkpoint.ErrNoCheckpoints) {
		return nil
	}
	if err != nil {
		return err
	}

	err = t.Restore(ckpt)
	t.opts.logger.LogRestore(ctx, ckpt.Step, err)
	return err
}

func (t *Trainer) saveCheckpoint(ctx context.Context) error {
	start := time.Now()
	err := t.opts.checkpoints.Save(ctx, t.Checkpoint())
	t.opts.metricsCollector.RecordCheckpoint(time.Since(start), err)
	t.opts.logger.LogCheckpoint(ctx, t.step, err)
	return err
}

// vizTiles bounds how many images go into each grid.
const vizTiles = 16

func (t *Trainer) saveViz(ctx context.Context, images *tensor.Tensor) {
	start := time.Now()
	err := t.writeGrids(images)
	t.opts.metricsCollector.RecordViz(time.Since(start), err)
	t.opts.logger.LogViz(ctx, t.step, t.opts.vizDir, err)
}

func (t *Trainer) writeGrids(images *tensor.Tensor) error {
	n := images.Dim(0)
	if n > vizTiles {
		n = vizTiles
	}
	inputs := images.Data()[:n*t.pixels]

	recon, err := t.Reconstruct(tensor.FromSlice(inputs, n, t.pixels))
	if err != nil {
		return err
	}
	samples, err := t.Sample(vizTiles)
	if err != nil {
		return err
	}

	side := imageSide(t.pixels)
	for _, grid := range []struct {
		name string
		data []float32
	}{
		{"inputs", inputs},
		{"reconstructions", recon.Data()},
		{"samples", samples.Data()},
	} {
		img, err := viz.Grid(grid.data, side, t.pixels/side, 4)
		if err != nil {
			return err
		}
		path := filepath.Join(t.opts.vizDir, fmt.Sprintf("step-%06d-%s.png", t.step, grid.name))
		if err := viz.SavePNG(path, img); err != nil {
			return err
		}
	}
	return nil
}

// imageSide returns the largest square side dividing pixels, so
// non-square latents still render.
func imageSide(pixels int) int {
	side := 1
	for s := 1; s*s <= pixels; s++ {
		if pixels%s == 0 {
			side = s
		}
	}
	return side
}

// Reconstruct runs images through the full encode/quantize/decode path
// and returns the Bernoulli means, shaped like the input.
func (t *Trainer) Reconstruct(images *tensor.Tensor) (*tensor.Tensor, error) {
	codes := t.encoder.Encode(images)
	nearest, _, err := t.quantizer.Quantize(codes)
	if err != nil {
		return nil, err
	}
	return t.decoder.Decode(nearest).Mean().Detach(), nil
}

// Sample draws n images from the uniform prior over codebook entries.
func (t *Trainer) Sample(n int) (*tensor.Tensor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}
	codes := nn.SamplePrior(t.rng, t.codebook, n, t.cfg.LatentSize)
	return t.decoder.Decode(codes).Mean().Detach(), nil
}

// StepCount returns the number of completed optimizer steps.
func (t *Trainer) StepCount() uint64 { return t.step }

// Codebook exposes the live codebook, mainly for inspection.
func (t *Trainer) Codebook() *quantize.Codebook { return t.codebook }

// Usage exposes the code usage tracker.
func (t *Trainer) Usage() *quantize.UsageTracker { return t.usage }

// Checkpoint snapshots the current training state. Optimizer moments
// are not persisted; Adam restarts its bias correction on resume.
func (t *Trainer) Checkpoint() *checkpoint.Checkpoint {
	params := append(t.encoder.Params(), t.decoder.Params()...)
	encCount := len(t.encoder.Params())

	states := make([]checkpoint.TensorState, len(params))
	for i, p := range params {
		name := paramName("encoder", i)
		if i >= encCount {
			name = paramName("decoder", i-encCount)
		}
		data := make([]float32, p.Numel())
		copy(data, p.Data())
		states[i] = checkpoint.TensorState{
			Name:  name,
			Shape: p.Shape(),
			Data:  data,
		}
	}

	return &checkpoint.Checkpoint{
		Step:      t.step,
		CreatedAt: time.Now().UTC(),
		Meta:      t.cfg.meta(),
		Params:    states,
		NumCodes:  t.cfg.NumCodes,
		CodeSize:  t.cfg.CodeSize,
		Codebook:  t.codebook.Vectors(),
		EMACount:  t.codebook.EMACount(),
		EMAMeans:  t.codebook.EMAMeans(),
	}
}

// paramName labels the i-th parameter of a sub-network. Linear layers
// contribute weight then bias.
func paramName(scope string, i int) string {
	kind := "weight"
	if i%2 == 1 {
		kind = "bias"
	}
	return fmt.Sprintf("%s.%d.%s", scope, i/2, kind)
}

// Restore loads a checkpoint into the trainer. The checkpoint must
// come from a model with identical architecture.
func (t *Trainer) Restore(ckpt *checkpoint.Checkpoint) error {
	if ckpt.NumCodes != t.cfg.NumCodes {
		return &ErrCheckpointMismatch{What: "num codes", Expected: t.cfg.NumCodes, Actual: ckpt.NumCodes}
	}
	if ckpt.CodeSize != t.cfg.CodeSize {
		return &ErrCheckpointMismatch{What: "code size", Expected: t.cfg.CodeSize, Actual: ckpt.CodeSize}
	}

	params := append(t.encoder.Params(), t.decoder.Params()...)
	if len(ckpt.Params) != len(params) {
		return &ErrCheckpointMismatch{What: "param count", Expected: len(params), Actual: len(ckpt.Params)}
	}
	for i, state := range ckpt.Params {
		if len(state.Data) != params[i].Numel() {
			return &ErrCheckpointMismatch{What: state.Name, Expected: params[i].Numel(), Actual: len(state.Data)}
		}
	}

	if err := t.codebook.Restore(ckpt.Codebook, ckpt.EMACount, ckpt.EMAMeans); err != nil {
		return err
	}
	for i, state := range ckpt.Params {
		copy(params[i].Data(), state.Data)
		params[i].ZeroGrad()
	}

	t.step = ckpt.Step
	t.pendingInit = false
	t.usage.Reset()
	return nil
}
