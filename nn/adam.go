package nn

import (
	"math"

	"github.com/hupe1980/vqvae/tensor"
)

// Adam implements the Adam optimizer with bias correction over a fixed set
// of gradient-tracked tensors. The codebook is updated by EMA, not by
// gradient descent, so it must never appear in the parameter set.
type Adam struct {
	params []*tensor.Tensor
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32

	m [][]float32
	v [][]float32
	t int
}

// AdamOption tunes optimizer hyperparameters.
type AdamOption func(*Adam)

// WithBetas sets the first and second moment decay rates.
// Defaults: 0.9 and 0.999.
func WithBetas(beta1, beta2 float32) AdamOption {
	return func(a *Adam) {
		a.beta1 = beta1
		a.beta2 = beta2
	}
}

// WithEps sets the denominator stabilizer. Default: 1e-8.
func WithEps(eps float32) AdamOption {
	return func(a *Adam) {
		a.eps = eps
	}
}

// NewAdam creates an optimizer for the given parameters.
func NewAdam(params []*tensor.Tensor, lr float32, optFns ...AdamOption) *Adam {
	a := &Adam{
		params: params,
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
	}
	for _, fn := range optFns {
		fn(a)
	}

	a.m = make([][]float32, len(params))
	a.v = make([][]float32, len(params))
	for i, p := range params {
		a.m[i] = make([]float32, p.Numel())
		a.v[i] = make([]float32, p.Numel())
	}
	return a
}

// Step applies one Adam update from the accumulated gradients and resets
// them to zero.
func (a *Adam) Step() {
	a.t++
	c1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.t)))
	c2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.t)))

	for i, p := range a.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		data := p.Data()
		m, v := a.m[i], a.v[i]
		for j, g := range grad {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			mHat := m[j] / c1
			vHat := v[j] / c2
			data[j] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
		p.ZeroGrad()
	}
}

// LearningRate returns the current learning rate.
func (a *Adam) LearningRate() float32 { return a.lr }

// SetLearningRate adjusts the learning rate, e.g. for decay schedules.
func (a *Adam) SetLearningRate(lr float32) { a.lr = lr }
