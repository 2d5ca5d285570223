package tensor

import (
	"fmt"
	"math"

	"github.com/hupe1980/vqvae/internal/math32"
)

// Add returns a + b element-wise.
func Add(a, b *Tensor) *Tensor {
	sameShape(a, b)
	data := make([]float32, len(a.data))
	for i := range data {
		data[i] = a.data[i] + b.data[i]
	}
	out := newResult(data, a.shape, a, b)
	if out.requiresGrad {
		out.backFn = func() {
			if a.requiresGrad {
				a.accumulate(out.grad)
			}
			if b.requiresGrad {
				b.accumulate(out.grad)
			}
		}
	}
	return out
}

// Sub returns a - b element-wise.
func Sub(a, b *Tensor) *Tensor {
	sameShape(a, b)
	data := make([]float32, len(a.data))
	for i := range data {
		data[i] = a.data[i] - b.data[i]
	}
	out := newResult(data, a.shape, a, b)
	if out.requiresGrad {
		out.backFn = func() {
			if a.requiresGrad {
				a.accumulate(out.grad)
			}
			if b.requiresGrad {
				b.ensureGrad()
				math32.Axpy(-1, out.grad, b.grad)
			}
		}
	}
	return out
}

// Mul returns a * b element-wise.
func Mul(a, b *Tensor) *Tensor {
	sameShape(a, b)
	data := make([]float32, len(a.data))
	for i := range data {
		data[i] = a.data[i] * b.data[i]
	}
	out := newResult(data, a.shape, a, b)
	if out.requiresGrad {
		out.backFn = func() {
			if a.requiresGrad {
				a.ensureGrad()
				for i, g := range out.grad {
					a.grad[i] += g * b.data[i]
				}
			}
			if b.requiresGrad {
				b.ensureGrad()
				for i, g := range out.grad {
					b.grad[i] += g * a.data[i]
				}
			}
		}
	}
	return out
}

// Scale returns a * s.
func Scale(a *Tensor, s float32) *Tensor {
	data := make([]float32, len(a.data))
	for i := range data {
		data[i] = a.data[i] * s
	}
	out := newResult(data, a.shape, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.ensureGrad()
			math32.Axpy(s, out.grad, a.grad)
		}
	}
	return out
}

// Square returns a^2 element-wise.
func Square(a *Tensor) *Tensor {
	data := make([]float32, len(a.data))
	for i := range data {
		data[i] = a.data[i] * a.data[i]
	}
	out := newResult(data, a.shape, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.ensureGrad()
			for i, g := range out.grad {
				a.grad[i] += 2 * a.data[i] * g
			}
		}
	}
	return out
}

// MatMul returns the matrix product of a [n,k] and b [k,m].
func MatMul(a, b *Tensor) *Tensor {
	if a.Rank() != 2 || b.Rank() != 2 || a.shape[1] != b.shape[0] {
		panic(fmt.Sprintf("tensor: MatMul shape mismatch %v x %v", a.shape, b.shape))
	}
	n, k, m := a.shape[0], a.shape[1], b.shape[1]
	data := make([]float32, n*m)
	for i := 0; i < n; i++ {
		arow := a.data[i*k : (i+1)*k]
		orow := data[i*m : (i+1)*m]
		for l := 0; l < k; l++ {
			math32.Axpy(arow[l], b.data[l*m:(l+1)*m], orow)
		}
	}
	out := newResult(data, []int{n, m}, a, b)
	if out.requiresGrad {
		out.backFn = func() {
			if a.requiresGrad {
				// dA = dOut * B^T
				a.ensureGrad()
				for i := 0; i < n; i++ {
					grow := out.grad[i*m : (i+1)*m]
					arow := a.grad[i*k : (i+1)*k]
					for l := 0; l < k; l++ {
						arow[l] += math32.Dot(grow, b.data[l*m:(l+1)*m])
					}
				}
			}
			if b.requiresGrad {
				// dB = A^T * dOut
				b.ensureGrad()
				for i := 0; i < n; i++ {
					grow := out.grad[i*m : (i+1)*m]
					arow := a.data[i*k : (i+1)*k]
					for l := 0; l < k; l++ {
						math32.Axpy(arow[l], grow, b.grad[l*m:(l+1)*m])
					}
				}
			}
		}
	}
	return out
}

// AddRowwise adds bias b [m] to every row of x [n,m].
func AddRowwise(x, b *Tensor) *Tensor {
	if x.Rank() != 2 || b.Rank() != 1 || x.shape[1] != b.shape[0] {
		panic(fmt.Sprintf("tensor: AddRowwise shape mismatch %v + %v", x.shape, b.shape))
	}
	n, m := x.shape[0], x.shape[1]
	data := make([]float32, n*m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			data[i*m+j] = x.data[i*m+j] + b.data[j]
		}
	}
	out := newResult(data, x.shape, x, b)
	if out.requiresGrad {
		out.backFn = func() {
			if x.requiresGrad {
				x.accumulate(out.grad)
			}
			if b.requiresGrad {
				b.ensureGrad()
				for i := 0; i < n; i++ {
					math32.Axpy(1, out.grad[i*m:(i+1)*m], b.grad)
				}
			}
		}
	}
	return out
}

// ELU applies the exponential linear unit element-wise:
// x for x > 0, exp(x)-1 otherwise.
func ELU(a *Tensor) *Tensor {
	data := make([]float32, len(a.data))
	for i, v := range a.data {
		if v > 0 {
			data[i] = v
		} else {
			data[i] = float32(math.Exp(float64(v))) - 1
		}
	}
	out := newResult(data, a.shape, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.ensureGrad()
			for i, g := range out.grad {
				if a.data[i] > 0 {
					a.grad[i] += g
				} else {
					// d/dx (exp(x)-1) = exp(x) = out+1
					a.grad[i] += g * (data[i] + 1)
				}
			}
		}
	}
	return out
}

// ReLU applies the rectified linear unit element-wise: max(x, 0).
func ReLU(a *Tensor) *Tensor {
	data := make([]float32, len(a.data))
	for i, v := range a.data {
		if v > 0 {
			data[i] = v
		}
	}
	out := newResult(data, a.shape, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.ensureGrad()
			for i, g := range out.grad {
				if a.data[i] > 0 {
					a.grad[i] += g
				}
			}
		}
	}
	return out
}

// Tanh applies the hyperbolic tangent element-wise.
func Tanh(a *Tensor) *Tensor {
	data := make([]float32, len(a.data))
	for i, v := range a.data {
		data[i] = float32(math.Tanh(float64(v)))
	}
	out := newResult(data, a.shape, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.ensureGrad()
			for i, g := range out.grad {
				t := data[i]
				a.grad[i] += g * (1 - t*t)
			}
		}
	}
	return out
}

// Sigmoid applies the logistic function element-wise.
func Sigmoid(a *Tensor) *Tensor {
	data := make([]float32, len(a.data))
	for i, v := range a.data {
		data[i] = 1 / (1 + float32(math.Exp(float64(-v))))
	}
	out := newResult(data, a.shape, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.ensureGrad()
			for i, g := range out.grad {
				s := data[i]
				a.grad[i] += g * s * (1 - s)
			}
		}
	}
	return out
}

// Softplus applies log(1+exp(x)) element-wise, computed in the
// numerically stable form max(x,0) + log1p(exp(-|x|)).
func Softplus(a *Tensor) *Tensor {
	data := make([]float32, len(a.data))
	for i, v := range a.data {
		x := float64(v)
		data[i] = float32(math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x))))
	}
	out := newResult(data, a.shape, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.ensureGrad()
			for i, g := range out.grad {
				// d/dx softplus = sigmoid(x)
				s := 1 / (1 + float32(math.Exp(float64(-a.data[i]))))
				a.grad[i] += g * s
			}
		}
	}
	return out
}

// Sum reduces the tensor to a scalar by summation.
func Sum(a *Tensor) *Tensor {
	data := []float32{math32.Sum(a.data)}
	out := newResult(data, []int{1}, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.ensureGrad()
			g := out.grad[0]
			for i := range a.grad {
				a.grad[i] += g
			}
		}
	}
	return out
}

// Mean reduces the tensor to a scalar by averaging.
func Mean(a *Tensor) *Tensor {
	n := float32(len(a.data))
	data := []float32{math32.Sum(a.data) / n}
	out := newResult(data, []int{1}, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.ensureGrad()
			g := out.grad[0] / n
			for i := range a.grad {
				a.grad[i] += g
			}
		}
	}
	return out
}

// SumRows reduces a [n,m] tensor to [n] by summing each row.
func SumRows(a *Tensor) *Tensor {
	if a.Rank() != 2 {
		panic(fmt.Sprintf("tensor: SumRows requires a matrix, got shape %v", a.shape))
	}
	n, m := a.shape[0], a.shape[1]
	data := make([]float32, n)
	for i := 0; i < n; i++ {
		data[i] = math32.Sum(a.data[i*m : (i+1)*m])
	}
	out := newResult(data, []int{n}, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.ensureGrad()
			for i := 0; i < n; i++ {
				g := out.grad[i]
				row := a.grad[i*m : (i+1)*m]
				for j := range row {
					row[j] += g
				}
			}
		}
	}
	return out
}

// StraightThrough returns a tensor whose forward values are taken verbatim
// from value while its gradient flows entirely, and unchanged, into
// gradTarget. value's own history is ignored. This is the straight-through
// estimator used to route reconstruction gradients around a
// non-differentiable lookup.
func StraightThrough(value, gradTarget *Tensor) *Tensor {
	sameShape(value, gradTarget)
	data := make([]float32, len(value.data))
	copy(data, value.data)
	out := newResult(data, value.shape, gradTarget)
	if out.requiresGrad {
		out.backFn = func() {
			gradTarget.accumulate(out.grad)
		}
	}
	return out
}

// Reshape returns a tensor with the same elements and a new shape.
// The element count must be unchanged. Values are shared forward; the
// gradient is routed back to the input untouched.
func Reshape(a *Tensor, shape ...int) *Tensor {
	if numel(shape) != len(a.data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", a.shape, shape))
	}
	out := newResult(a.data, shape, a)
	if out.requiresGrad {
		out.backFn = func() {
			a.accumulate(out.grad)
		}
	}
	return out
}
