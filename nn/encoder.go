package nn

import (
	"math/rand"

	"github.com/hupe1980/vqvae/tensor"
)

// Encoder maps flattened images to continuous latent codes shaped
// [batch, latentSize, codeSize], ready for quantization.
type Encoder struct {
	net        *MLP
	latentSize int
	codeSize   int
}

// NewEncoder builds an encoder over pixels inputs with the given hidden
// layer sizes.
func NewEncoder(rng *rand.Rand, pixels int, hidden []int, latentSize, codeSize int, optFns ...MLPOption) *Encoder {
	return &Encoder{
		net:        NewMLP(rng, pixels, hidden, latentSize*codeSize, optFns...),
		latentSize: latentSize,
		codeSize:   codeSize,
	}
}

// Encode maps images [batch, pixels] to codes [batch, latentSize, codeSize].
func (e *Encoder) Encode(images *tensor.Tensor) *tensor.Tensor {
	batch := images.Dim(0)
	out := e.net.Forward(images)
	return tensor.Reshape(out, batch, e.latentSize, e.codeSize)
}

// Params returns the encoder's trainable tensors.
func (e *Encoder) Params() []*tensor.Tensor { return e.net.Params() }
