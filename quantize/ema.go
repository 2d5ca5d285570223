package quantize

import (
	"github.com/hupe1980/vqvae/internal/math32"
	"github.com/hupe1980/vqvae/tensor"
)

// DefaultEpsilon is the additive floor applied to EMA counts before the
// codebook division, preventing division by zero for never-selected codes.
const DefaultEpsilon = 1e-5

// EMAUpdater derives the next codebook from per-batch assignment statistics
// via exponential moving averages. This is a model-free update: the
// codebook receives no gradient from the loss, only the running average of
// the vectors assigned to it.
type EMAUpdater struct {
	codebook *Codebook
	decay    float32
	epsilon  float32
}

// NewEMAUpdater creates an updater with the given decay (must lie in the
// open interval (0,1), e.g. 0.99) and epsilon floor (DefaultEpsilon when
// zero). Decay is validated here so a bad value fails at configuration
// time instead of deep inside a training step.
func NewEMAUpdater(codebook *Codebook, decay, epsilon float32) (*EMAUpdater, error) {
	if decay <= 0 || decay >= 1 {
		return nil, &ErrInvalidDecay{Decay: decay}
	}
	if epsilon < 0 {
		return nil, ErrInvalidEpsilon
	}
	if epsilon == 0 {
		epsilon = DefaultEpsilon
	}
	return &EMAUpdater{codebook: codebook, decay: decay, epsilon: epsilon}, nil
}

// Update consumes one step's raw latent codes [batch, latent, codeSize] and
// one-hot assignments [batch, latent, numCodes], refreshes the EMA
// accumulators and installs the derived codebook via ApplyUpdate.
// It returns the new flattened codebook.
//
// The caller must pass the same codes and oneHot used to build the step's
// loss, and must call Update only after the loss and its gradients have
// been computed from the old codebook.
//
// A code with no assignments this step has its count and mean decayed by
// exactly the decay factor, so a never-selected code drifts toward zero
// rather than holding its old value. That behavior is part of the
// algorithm's observable contract and is preserved as is.
func (u *EMAUpdater) Update(codes, oneHot *tensor.Tensor) ([]float32, error) {
	d := u.codebook.codeSize
	k := u.codebook.numCodes

	if codes.Dim(-1) != d {
		return nil, &ErrDimensionMismatch{Expected: d, Actual: codes.Dim(-1)}
	}
	if oneHot.Dim(-1) != k {
		return nil, &ErrDimensionMismatch{Expected: k, Actual: oneHot.Dim(-1)}
	}
	rows := codes.Numel() / d
	if oneHot.Numel()/k != rows {
		return nil, &ErrDimensionMismatch{Expected: rows, Actual: oneHot.Numel() / k}
	}

	codeData := codes.Data()
	hotData := oneHot.Data()

	// Per-batch selection counts and sums of assigned inputs.
	batchCounts := make([]float32, k)
	batchMeans := make([]float32, k*d)
	for r := 0; r < rows; r++ {
		vec := codeData[r*d : (r+1)*d]
		hot := hotData[r*k : (r+1)*k]
		for j, w := range hot {
			if w == 0 {
				continue
			}
			batchCounts[j] += w
			math32.Axpy(w, vec, batchMeans[j*d:(j+1)*d])
		}
	}

	// ema = decay*ema + (1-decay)*batch
	for j := 0; j < k; j++ {
		u.codebook.emaCount[j] = u.decay*u.codebook.emaCount[j] + (1-u.decay)*batchCounts[j]
	}
	math32.ScaleInPlace(u.codebook.emaMeans, u.decay)
	math32.Axpy(1-u.decay, batchMeans, u.codebook.emaMeans)

	next := make([]float32, k*d)
	for j := 0; j < k; j++ {
		countAdj := u.codebook.emaCount[j] + u.epsilon
		inv := 1 / countAdj
		for i := 0; i < d; i++ {
			next[j*d+i] = u.codebook.emaMeans[j*d+i] * inv
		}
	}

	if err := u.codebook.ApplyUpdate(next); err != nil {
		return nil, err
	}
	return next, nil
}
