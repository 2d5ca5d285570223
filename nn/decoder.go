package nn

import (
	"math/rand"

	"github.com/hupe1980/vqvae/quantize"
	"github.com/hupe1980/vqvae/tensor"
)

// Decoder maps quantized latent codes back to a Bernoulli distribution
// over binarized pixels.
type Decoder struct {
	net    *MLP
	pixels int
}

// NewDecoder builds a decoder producing distributions over pixels outputs.
func NewDecoder(rng *rand.Rand, latentSize, codeSize int, hidden []int, pixels int, optFns ...MLPOption) *Decoder {
	return &Decoder{
		net:    NewMLP(rng, latentSize*codeSize, hidden, pixels, optFns...),
		pixels: pixels,
	}
}

// Decode maps codes [batch, latentSize, codeSize] to a per-pixel Bernoulli
// distribution. It satisfies quantize.DecodeFunc.
func (d *Decoder) Decode(codes *tensor.Tensor) quantize.Distribution {
	batch := codes.Dim(0)
	flat := tensor.Reshape(codes, batch, codes.Numel()/batch)
	return &Bernoulli{Logits: d.net.Forward(flat)}
}

// Params returns the decoder's trainable tensors.
func (d *Decoder) Params() []*tensor.Tensor { return d.net.Params() }

// Bernoulli is an independent per-pixel Bernoulli distribution
// parameterized by logits [batch, pixels].
type Bernoulli struct {
	Logits *tensor.Tensor
}

// LogProb returns the per-batch-element log likelihood of images
// [batch, pixels] with values in {0,1}:
//
//	sum over pixels of x*l - softplus(l)
//
// which equals x*log(sigmoid(l)) + (1-x)*log(1-sigmoid(l)).
func (b *Bernoulli) LogProb(images *tensor.Tensor) *tensor.Tensor {
	return tensor.SumRows(tensor.Sub(tensor.Mul(images, b.Logits), tensor.Softplus(b.Logits)))
}

// Mean returns the expected image batch, sigmoid(logits).
func (b *Bernoulli) Mean() *tensor.Tensor {
	return tensor.Sigmoid(b.Logits)
}
