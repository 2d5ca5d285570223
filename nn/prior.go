package nn

import (
	"math/rand"

	"github.com/hupe1980/vqvae/quantize"
	"github.com/hupe1980/vqvae/tensor"
)

// SamplePrior draws n latent code sequences from a uniform prior over the
// codebook: each latent position independently picks a random codebook
// entry. The result is shaped [n, latentSize, codeSize] and is used to
// visualize decodes of unconditioned samples.
func SamplePrior(rng *rand.Rand, codebook *quantize.Codebook, n, latentSize int) *tensor.Tensor {
	d := codebook.CodeSize()
	data := make([]float32, n*latentSize*d)
	for i := 0; i < n*latentSize; i++ {
		k := rng.Intn(codebook.NumCodes())
		copy(data[i*d:(i+1)*d], codebook.Vector(k))
	}
	return tensor.FromSlice(data, n, latentSize, d)
}
