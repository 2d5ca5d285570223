package quantize

import (
	"github.com/hupe1980/vqvae/tensor"
)

// Distribution is the probability distribution a decoder produces over
// images. Implementations live outside this package (see the nn package's
// Bernoulli decoder).
type Distribution interface {
	// LogProb returns the per-batch-element log likelihood of images.
	LogProb(images *tensor.Tensor) *tensor.Tensor
	// Mean returns the distribution's expected image batch.
	Mean() *tensor.Tensor
}

// DecodeFunc builds a distribution over images from quantized codes.
type DecodeFunc func(codes *tensor.Tensor) Distribution

// Loss bundles the composed training loss and its parts.
//
// Gradient routing: Total backpropagates into encoder parameters (through
// the straight-through path and the commitment term) and into decoder
// parameters (through the reconstruction term). The codebook receives no
// gradient at all; it is updated exclusively by the EMA mechanism.
type Loss struct {
	// Total = Reconstruction + beta * Commitment.
	Total *tensor.Tensor
	// Reconstruction is -mean(log p(images | quantized codes)).
	Reconstruction *tensor.Tensor
	// Commitment is mean((codes - stopGrad(nearest))^2), pushing the
	// encoder output toward its assigned codebook entry.
	Commitment *tensor.Tensor
	// Decoded is the decoder distribution conditioned on the quantized
	// codes, kept for reconstruction visualization.
	Decoded Distribution
}

// ComposeLoss builds the single differentiable scalar loss that trains
// encoder and decoder across the non-differentiable quantization step.
//
// codes is the encoder's raw output and nearest the quantizer's matched
// codebook entries for the same batch. The decoder sees values equal to
// nearest, but the gradient with respect to them flows straight back into
// codes.
func ComposeLoss(codes, nearest *tensor.Tensor, decode DecodeFunc, images *tensor.Tensor, beta float32) (*Loss, error) {
	if codes.Numel() != nearest.Numel() || codes.Dim(-1) != nearest.Dim(-1) {
		return nil, &ErrDimensionMismatch{Expected: codes.Numel(), Actual: nearest.Numel()}
	}

	// Forward value: nearest. Backward: identity into codes.
	codesST := tensor.StraightThrough(nearest, codes)

	decoded := decode(codesST)
	logProb := decoded.LogProb(images)
	reconstruction := tensor.Scale(tensor.Mean(logProb), -1)

	// nearest is already outside the gradient graph; Sub routes gradient
	// only into codes.
	commitment := tensor.Mean(tensor.Square(tensor.Sub(codes, nearest)))

	total := tensor.Add(reconstruction, tensor.Scale(commitment, beta))

	return &Loss{
		Total:          total,
		Reconstruction: reconstruction,
		Commitment:     commitment,
		Decoded:        decoded,
	}, nil
}
