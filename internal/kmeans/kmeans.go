// Package kmeans implements Lloyd's algorithm over flat float32 vectors.
//
// It is used to seed the codebook from a sample of encoder outputs, so the
// first quantization steps start from centroids that already cover the
// latent distribution instead of pure noise.
package kmeans

import (
	"math"
	"math/rand"

	"github.com/hupe1980/vqvae/internal/math32"
)

// Train clusters the given vectors (flattened, n*dim) into k centroids and
// returns them flattened (k*dim). Distances are squared Euclidean, the same
// metric the quantizer matches with. Returns nil if there are fewer vectors
// than centroids.
func Train(rng *rand.Rand, vectors []float32, dim, k, maxIter int) []float32 {
	n := len(vectors) / dim
	if n < k {
		return nil
	}

	centroids := make([]float32, k*dim)

	// Initialize centroids from distinct data points.
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		copy(centroids[i*dim:(i+1)*dim], vectors[perm[i]*dim:(perm[i]+1)*dim])
	}

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		changed := false

		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			best := Assign(vec, centroids, dim)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed && iter > 0 {
			break
		}

		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}

		for i := 0; i < n; i++ {
			c := assignments[i]
			math32.Axpy(1, vectors[i*dim:(i+1)*dim], sums[c*dim:(c+1)*dim])
			counts[c]++
		}

		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1.0 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				// Reseed an empty cluster from a random data point.
				idx := rng.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	return centroids
}

// Assign returns the index of the centroid closest to vec, with ties broken
// toward the lowest index.
func Assign(vec []float32, centroids []float32, dim int) int {
	k := len(centroids) / dim
	best := 0
	minDist := float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := math32.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}
	return best
}
