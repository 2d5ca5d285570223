package tensor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSlice(t *testing.T) {
	x := FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, []int{2, 3}, x.Shape())
	assert.Equal(t, 6, x.Numel())
	assert.Equal(t, 3, x.Dim(-1))
	assert.Equal(t, 2, x.Dim(0))

	assert.Panics(t, func() {
		FromSlice([]float32{1, 2, 3}, 2, 2)
	})
}

func TestDetachStopsGradient(t *testing.T) {
	x := FromSlice([]float32{2, 3}, 2).RequireGrad()
	d := x.Detach()

	assert.False(t, d.RequiresGrad())
	assert.Equal(t, x.Data(), d.Data())

	// loss = sum(x * detach(x)): the detached branch contributes values but
	// no gradient, so dloss/dx = detach(x) = x values, not 2x.
	loss := Sum(Mul(x, d))
	Backward(loss)

	assert.InDeltaSlice(t, []float32{2, 3}, x.Grad(), 1e-6)
}

func TestBackwardAddSubMul(t *testing.T) {
	a := FromSlice([]float32{1, 2}, 2).RequireGrad()
	b := FromSlice([]float32{3, 4}, 2).RequireGrad()

	// loss = sum((a+b) * (a-b)) = sum(a^2 - b^2)
	loss := Sum(Mul(Add(a, b), Sub(a, b)))
	Backward(loss)

	assert.InDelta(t, float64(1-9+4-16), float64(loss.Value()), 1e-5)
	assert.InDeltaSlice(t, []float32{2, 4}, a.Grad(), 1e-5)
	assert.InDeltaSlice(t, []float32{-6, -8}, b.Grad(), 1e-5)
}

func TestBackwardMatMul(t *testing.T) {
	a := FromSlice([]float32{1, 2, 3, 4}, 2, 2).RequireGrad()
	b := FromSlice([]float32{5, 6, 7, 8}, 2, 2).RequireGrad()

	out := MatMul(a, b)
	require.Equal(t, []int{2, 2}, out.Shape())
	assert.InDeltaSlice(t, []float32{19, 22, 43, 50}, out.Data(), 1e-5)

	loss := Sum(out)
	Backward(loss)

	// dA = ones * B^T, dB = A^T * ones
	assert.InDeltaSlice(t, []float32{11, 15, 11, 15}, a.Grad(), 1e-5)
	assert.InDeltaSlice(t, []float32{4, 4, 6, 6}, b.Grad(), 1e-5)
}

func TestBackwardScaleSquareMean(t *testing.T) {
	x := FromSlice([]float32{1, -2, 3, 0}, 4).RequireGrad()

	// loss = mean((2x)^2) => dloss/dx = 8x/4 = 2x
	loss := Mean(Square(Scale(x, 2)))
	Backward(loss)

	assert.InDelta(t, float64(4+16+36+0)/4, float64(loss.Value()), 1e-5)
	assert.InDeltaSlice(t, []float32{2, -4, 6, 0}, x.Grad(), 1e-5)
}

func TestAddRowwise(t *testing.T) {
	x := FromSlice([]float32{1, 2, 3, 4}, 2, 2).RequireGrad()
	b := FromSlice([]float32{10, 20}, 2).RequireGrad()

	out := AddRowwise(x, b)
	assert.InDeltaSlice(t, []float32{11, 22, 13, 24}, out.Data(), 1e-5)

	Backward(Sum(out))
	assert.InDeltaSlice(t, []float32{1, 1, 1, 1}, x.Grad(), 1e-5)
	assert.InDeltaSlice(t, []float32{2, 2}, b.Grad(), 1e-5)
}

func TestReshapeRoutesGradient(t *testing.T) {
	x := FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3).RequireGrad()
	y := Reshape(x, 3, 2)
	assert.Equal(t, []int{3, 2}, y.Shape())

	Backward(Sum(Square(y)))
	assert.InDeltaSlice(t, []float32{2, 4, 6, 8, 10, 12}, x.Grad(), 1e-5)

	assert.Panics(t, func() { Reshape(x, 4, 2) })
}

// numericGrad estimates dF/dx[i] with central differences.
func numericGrad(f func() float32, x []float32, i int) float32 {
	const h = 1e-3
	orig := x[i]
	x[i] = orig + h
	fp := f()
	x[i] = orig - h
	fm := f()
	x[i] = orig
	return (fp - fm) / (2 * h)
}

func TestGradientsAgainstFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	w := RandNormal(rng, 0.5, 3, 2).RequireGrad()
	b := RandNormal(rng, 0.5, 2).RequireGrad()
	x := RandNormal(rng, 1.0, 4, 3)

	forward := func() float32 {
		h := ELU(AddRowwise(MatMul(x, w), b))
		return Mean(Square(Sigmoid(h))).Value()
	}

	loss := Mean(Square(Sigmoid(ELU(AddRowwise(MatMul(x, w), b)))))
	Backward(loss)

	for i := range w.Data() {
		want := numericGrad(forward, w.Data(), i)
		assert.InDelta(t, float64(want), float64(w.Grad()[i]), 5e-3, "w[%d]", i)
	}
	for i := range b.Data() {
		want := numericGrad(forward, b.Data(), i)
		assert.InDelta(t, float64(want), float64(b.Grad()[i]), 5e-3, "b[%d]", i)
	}
}

func TestReLUTanhGradients(t *testing.T) {
	x := FromSlice([]float32{-1.5, -0.2, 0.3, 2}, 4).RequireGrad()

	out := ReLU(x)
	assert.InDeltaSlice(t, []float32{0, 0, 0.3, 2}, out.Data(), 1e-5)

	Backward(Sum(out))
	// Gradient passes only where the input is positive.
	assert.InDeltaSlice(t, []float32{0, 0, 1, 1}, x.Grad(), 1e-5)

	y := FromSlice([]float32{-1, 0, 1}, 3).RequireGrad()
	forward := func() float32 { return Sum(Tanh(y)).Value() }

	Backward(Sum(Tanh(y)))
	for i := range y.Data() {
		want := numericGrad(forward, y.Data(), i)
		assert.InDelta(t, float64(want), float64(y.Grad()[i]), 5e-3, "y[%d]", i)
	}
}

func TestBackwardRequiresScalar(t *testing.T) {
	x := FromSlice([]float32{1, 2}, 2).RequireGrad()
	assert.Panics(t, func() { Backward(Square(x)) })
}

func TestGradAccumulatesAcrossPaths(t *testing.T) {
	x := FromSlice([]float32{3}, 1).RequireGrad()
	// loss = x*x via two references to the same node.
	loss := Mul(x, x)
	Backward(loss)
	assert.InDeltaSlice(t, []float32{6}, x.Grad(), 1e-5)
}
