// Package tensor implements a small reverse-mode automatic differentiation
// engine over dense float32 tensors.
//
// Storage is a flat []float32 in row-major order. Every operation records
// its inputs and a backward closure; calling Backward on a scalar output
// walks the recorded graph in reverse topological order and accumulates
// gradients into every tensor that requires them.
//
// Gradient tracking is opt-in: only tensors marked with RequireGrad (and
// tensors derived from them) participate in backpropagation. Constants such
// as input images or codebook snapshots stay outside the gradient graph
// entirely, so "no gradient reaches X" is a structural property, not a
// numerical one.
//
// Shape mismatches between operands are programmer errors and panic, the
// same convention gonum's mat package uses.
package tensor

import (
	"fmt"
	"math/rand"
)

// Tensor is a dense float32 tensor with optional gradient tracking.
type Tensor struct {
	data  []float32
	grad  []float32
	shape []int

	requiresGrad bool
	parents      []*Tensor
	backFn       func()
}

// Zeros creates a zero-filled tensor with the given shape.
func Zeros(shape ...int) *Tensor {
	return &Tensor{
		data:  make([]float32, numel(shape)),
		shape: cloneShape(shape),
	}
}

// FromSlice creates a tensor that takes ownership of data.
// The length of data must equal the product of the shape.
func FromSlice(data []float32, shape ...int) *Tensor {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %v", len(data), shape))
	}
	return &Tensor{
		data:  data,
		shape: cloneShape(shape),
	}
}

// RandNormal creates a tensor filled with normal noise of the given
// standard deviation, drawn from rng.
func RandNormal(rng *rand.Rand, std float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64()) * std
	}
	return t
}

// RequireGrad marks the tensor as a trainable parameter and allocates its
// gradient buffer. It returns the tensor for chaining.
func (t *Tensor) RequireGrad() *Tensor {
	t.requiresGrad = true
	t.ensureGrad()
	return t
}

// RequiresGrad reports whether gradients flow into this tensor.
func (t *Tensor) RequiresGrad() bool { return t.requiresGrad }

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int { return cloneShape(t.shape) }

// Dim returns the size of dimension i. Negative indices count from the
// end, so Dim(-1) is the trailing dimension.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Numel returns the total number of elements.
func (t *Tensor) Numel() int { return len(t.data) }

// Data returns the underlying storage. The caller must not resize it;
// in-place mutation is only safe between training steps.
func (t *Tensor) Data() []float32 { return t.data }

// Grad returns the gradient buffer, or nil if no gradient has flowed into
// the tensor.
func (t *Tensor) Grad() []float32 { return t.grad }

// Value returns the single element of a scalar tensor.
func (t *Tensor) Value() float32 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("tensor: Value on non-scalar shape %v", t.shape))
	}
	return t.data[0]
}

// ZeroGrad resets the gradient buffer to zero.
func (t *Tensor) ZeroGrad() {
	for i := range t.grad {
		t.grad[i] = 0
	}
}

// Detach returns a copy of the tensor's values with no gradient tracking
// and no history. This is the stop-gradient primitive: the returned tensor
// behaves as a constant under differentiation.
func (t *Tensor) Detach() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return FromSlice(data, t.shape...)
}

// Clone returns a deep copy of the tensor's values with no history.
// Unlike Detach it preserves the requiresGrad flag.
func (t *Tensor) Clone() *Tensor {
	c := t.Detach()
	if t.requiresGrad {
		c.RequireGrad()
	}
	return c
}

func (t *Tensor) ensureGrad() {
	if t.grad == nil {
		t.grad = make([]float32, len(t.data))
	}
}

// accumulate adds src into the tensor's gradient buffer.
func (t *Tensor) accumulate(src []float32) {
	t.ensureGrad()
	for i, v := range src {
		t.grad[i] += v
	}
}

// Backward runs reverse-mode differentiation from a scalar output.
// The output's gradient is seeded with 1; every tensor in its history that
// requires gradients receives its accumulated partial derivative.
func Backward(out *Tensor) {
	if out.Numel() != 1 {
		panic(fmt.Sprintf("tensor: Backward requires a scalar output, got shape %v", out.shape))
	}

	var topo []*Tensor
	visited := make(map[*Tensor]bool)
	var build func(t *Tensor)
	build = func(t *Tensor) {
		if visited[t] {
			return
		}
		visited[t] = true
		for _, p := range t.parents {
			build(p)
		}
		topo = append(topo, t)
	}
	build(out)

	out.ensureGrad()
	out.grad[0] = 1

	for i := len(topo) - 1; i >= 0; i-- {
		n := topo[i]
		if n.backFn != nil && n.grad != nil {
			n.backFn()
		}
	}
}

// newResult builds the output tensor of an operation over the given
// parents. The output tracks gradients iff any parent does.
func newResult(data []float32, shape []int, parents ...*Tensor) *Tensor {
	out := &Tensor{
		data:  data,
		shape: cloneShape(shape),
	}
	for _, p := range parents {
		if p.requiresGrad {
			out.requiresGrad = true
			out.parents = parents
			break
		}
	}
	return out
}

func cloneShape(shape []int) []int {
	s := make([]int, len(shape))
	copy(s, shape)
	return s
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in shape %v", shape))
		}
		n *= d
	}
	return n
}

func sameShape(a, b *Tensor) {
	if len(a.shape) != len(b.shape) {
		panic(fmt.Sprintf("tensor: shape mismatch %v vs %v", a.shape, b.shape))
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			panic(fmt.Sprintf("tensor: shape mismatch %v vs %v", a.shape, b.shape))
		}
	}
}
