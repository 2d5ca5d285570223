package quantize

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vqvae/tensor"
)

// gaussianDist is a minimal decoder distribution for tests: an isotropic
// Gaussian centered on a linear readout of the codes.
type gaussianDist struct {
	mean *tensor.Tensor // [batch, pixels]
}

func (d *gaussianDist) LogProb(images *tensor.Tensor) *tensor.Tensor {
	return tensor.Scale(tensor.SumRows(tensor.Square(tensor.Sub(d.mean, images))), -0.5)
}

func (d *gaussianDist) Mean() *tensor.Tensor { return d.mean }

// testDecoder reads codes [batch, latent, codeSize] through a single linear
// layer into pixel space.
type testDecoder struct {
	w *tensor.Tensor // [latent*codeSize, pixels]
}

func (td *testDecoder) decode(codes *tensor.Tensor) Distribution {
	batch := codes.Dim(0)
	flat := tensor.Reshape(codes, batch, codes.Numel()/batch)
	return &gaussianDist{mean: tensor.MatMul(flat, td.w)}
}

func TestComposeLossForwardEqualsNearest(t *testing.T) {
	cb := fixedCodebook(t, []float32{1, 2}, []float32{-3, 4})
	q := NewQuantizer(cb)

	codes := tensor.FromSlice([]float32{0.9, 2.2, -2.5, 3.5}, 2, 1, 2).RequireGrad()
	nearest, _, err := q.Quantize(codes)
	require.NoError(t, err)

	var seen *tensor.Tensor
	decode := func(c *tensor.Tensor) Distribution {
		seen = c
		return &gaussianDist{mean: tensor.Reshape(c, 2, 2)}
	}

	images := tensor.Zeros(2, 2)
	_, err = ComposeLoss(codes, nearest, decode, images, 0.25)
	require.NoError(t, err)

	// The decoder must see exactly the matched codebook entries.
	require.NotNil(t, seen)
	assert.Equal(t, nearest.Data(), seen.Data())
}

func TestComposeLossGradientIsolation(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	cb, err := NewCodebook(4, 2, WithRand(rng))
	require.NoError(t, err)
	q := NewQuantizer(cb)

	vectorsBefore := cb.Vectors()

	codes := tensor.RandNormal(rng, 1, 3, 2, 2).RequireGrad()
	nearest, _, err := q.Quantize(codes)
	require.NoError(t, err)

	dec := &testDecoder{w: tensor.RandNormal(rng, 0.5, 4, 5).RequireGrad()}
	images := tensor.RandNormal(rng, 1, 3, 5)

	loss, err := ComposeLoss(codes, nearest, dec.decode, images, 0.25)
	require.NoError(t, err)
	tensor.Backward(loss.Total)

	// Encoder side: gradient flows into codes through both the
	// straight-through path and the commitment term.
	require.NotNil(t, codes.Grad())
	var nonZero bool
	for _, g := range codes.Grad() {
		if g != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero, "codes must receive gradient")

	// Decoder side: gradient flows into decoder parameters.
	require.NotNil(t, dec.w.Grad())

	// Codebook side: the quantizer outputs are constants, so the codebook
	// receives exactly zero gradient and stays untouched by backprop.
	assert.False(t, nearest.RequiresGrad())
	assert.Nil(t, nearest.Grad())
	assert.Equal(t, vectorsBefore, cb.Vectors())
}

func TestComposeLossCommitmentZeroWhenCodesMatch(t *testing.T) {
	cb := fixedCodebook(t, []float32{1, -1}, []float32{5, 5})
	q := NewQuantizer(cb)

	// codes placed exactly on codebook entry 0.
	codes := tensor.FromSlice([]float32{1, -1}, 1, 1, 2).RequireGrad()
	nearest, _, err := q.Quantize(codes)
	require.NoError(t, err)

	decode := func(c *tensor.Tensor) Distribution {
		return &gaussianDist{mean: tensor.Reshape(c, 1, 2)}
	}
	loss, err := ComposeLoss(codes, nearest, decode, tensor.Zeros(1, 2), 0.25)
	require.NoError(t, err)

	assert.Zero(t, loss.Commitment.Value())
}

func TestComposeLossTotal(t *testing.T) {
	cb := fixedCodebook(t, []float32{0, 0})
	q := NewQuantizer(cb)

	codes := tensor.FromSlice([]float32{1, 1}, 1, 1, 2).RequireGrad()
	nearest, _, err := q.Quantize(codes)
	require.NoError(t, err)

	decode := func(c *tensor.Tensor) Distribution {
		return &gaussianDist{mean: tensor.Reshape(c, 1, 2)}
	}

	// mean = nearest = [0,0]; images = [2,2]:
	//   logProb      = -0.5 * (4+4) = -4, reconstruction = 4
	//   commitment   = mean((1,1)-(0,0))^2 = 1
	//   total        = 4 + beta*1
	const beta = 0.25
	loss, err := ComposeLoss(codes, nearest, decode, tensor.FromSlice([]float32{2, 2}, 1, 2), beta)
	require.NoError(t, err)

	assert.InDelta(t, 4.0, loss.Reconstruction.Value(), 1e-5)
	assert.InDelta(t, 1.0, loss.Commitment.Value(), 1e-5)
	assert.InDelta(t, 4.0+beta, loss.Total.Value(), 1e-5)
}

func TestComposeLossDimensionMismatch(t *testing.T) {
	codes := tensor.FromSlice([]float32{1, 2}, 1, 1, 2)
	nearest := tensor.FromSlice([]float32{1, 2, 3}, 1, 1, 3)

	_, err := ComposeLoss(codes, nearest, nil, tensor.Zeros(1, 2), 0.25)
	var dimErr *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestPerplexity(t *testing.T) {
	// Uniform over 4 codes: perplexity = 4.
	uniform := tensor.FromSlice([]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}, 4, 1, 4)
	assert.InDelta(t, 4.0, Perplexity(uniform), 1e-9)

	// Collapse onto one code: perplexity = 1.
	collapsed := tensor.FromSlice([]float32{
		1, 0, 0, 0,
		1, 0, 0, 0,
	}, 2, 1, 4)
	assert.InDelta(t, 1.0, Perplexity(collapsed), 1e-9)
}

func TestUsageTracker(t *testing.T) {
	u := NewUsageTracker(8)
	assert.Equal(t, 0, u.ActiveCodes())
	assert.Equal(t, 8, u.DeadCodes())

	u.Observe([]uint32{0, 3, 3, 7})
	assert.Equal(t, 3, u.ActiveCodes())
	assert.Equal(t, 5, u.DeadCodes())
	assert.True(t, u.Used(3))
	assert.False(t, u.Used(1))

	u.Reset()
	assert.Equal(t, 0, u.ActiveCodes())
}
