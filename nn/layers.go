package nn

import (
	"math/rand"

	"github.com/hupe1980/vqvae/internal/math32"
	"github.com/hupe1980/vqvae/tensor"
)

// Linear is a fully connected layer: out = x*W + b.
type Linear struct {
	W *tensor.Tensor // [in, out]
	B *tensor.Tensor // [out]
}

// NewLinear creates a linear layer with scaled-normal weight init
// (std = 1/sqrt(in)) and zero bias.
func NewLinear(rng *rand.Rand, in, out int) *Linear {
	std := 1 / math32.Sqrt32(float32(in))
	return &Linear{
		W: tensor.RandNormal(rng, std, in, out).RequireGrad(),
		B: tensor.Zeros(out).RequireGrad(),
	}
}

// Forward applies the layer to x [n, in].
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	return tensor.AddRowwise(tensor.MatMul(x, l.W), l.B)
}

// Params returns the layer's trainable tensors.
func (l *Linear) Params() []*tensor.Tensor {
	return []*tensor.Tensor{l.W, l.B}
}

// MLP is a stack of linear layers with a pointwise activation between
// them. The final layer is linear (no activation).
type MLP struct {
	layers     []*Linear
	activation Activation
}

type mlpOptions struct {
	activation Activation
}

// MLPOption configures an MLP.
type MLPOption func(*mlpOptions)

// WithActivation sets the hidden-layer nonlinearity. The default is
// DefaultActivation.
func WithActivation(a Activation) MLPOption {
	return func(o *mlpOptions) {
		o.activation = a
	}
}

// NewMLP builds an MLP mapping in -> hidden... -> out.
func NewMLP(rng *rand.Rand, in int, hidden []int, out int, optFns ...MLPOption) *MLP {
	opts := mlpOptions{activation: DefaultActivation}
	for _, fn := range optFns {
		fn(&opts)
	}

	sizes := append([]int{in}, hidden...)
	sizes = append(sizes, out)

	layers := make([]*Linear, 0, len(sizes)-1)
	for i := 0; i < len(sizes)-1; i++ {
		layers = append(layers, NewLinear(rng, sizes[i], sizes[i+1]))
	}
	return &MLP{layers: layers, activation: opts.activation}
}

// Forward applies the network to x [n, in].
func (m *MLP) Forward(x *tensor.Tensor) *tensor.Tensor {
	for i, l := range m.layers {
		x = l.Forward(x)
		if i < len(m.layers)-1 {
			x = m.activation.apply(x)
		}
	}
	return x
}

// Params returns all trainable tensors of the network.
func (m *MLP) Params() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, l := range m.layers {
		params = append(params, l.Params()...)
	}
	return params
}
