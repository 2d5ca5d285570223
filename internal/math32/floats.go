// Package math32 provides float32 vector kernels shared by the quantizer,
// the EMA codebook update and the tensor engine.
//
// All distance and accumulation arithmetic in this module is done in
// float32, matching the precision the codebook is stored in.
package math32

import "math"

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two
// vectors. Squared distance preserves argmin ordering, so nearest-neighbor
// selection never needs the square root.
func SquaredL2(a, b []float32) float32 {
	var distance float32
	for i := range a {
		distance += (a[i] - b[i]) * (a[i] - b[i])
	}

	return distance
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

// Axpy computes y += alpha*x element-wise.
// Assumes x and y are the same length (caller's responsibility).
func Axpy(alpha float32, x, y []float32) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}

// Sum returns the sum of all elements of a.
func Sum(a []float32) float32 {
	var ret float32
	for _, v := range a {
		ret += v
	}

	return ret
}

// Sqrt32 is a float32 square root helper.
func Sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
