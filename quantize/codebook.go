package quantize

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/hupe1980/vqvae/internal/kmeans"
)

// Codebook holds the current quantization targets plus the EMA accumulators
// that derive the next ones. Vectors are stored flat in row-major order,
// one row of codeSize values per code.
//
// The codebook is never written by gradient descent. Reads during the
// forward pass see a stable snapshot; ApplyUpdate replaces the contents
// once per training step, after all reads of that step.
type Codebook struct {
	numCodes int
	codeSize int

	vectors  []float32 // numCodes * codeSize
	emaCount []float32 // numCodes, soft selection counts
	emaMeans []float32 // numCodes * codeSize, moving sums of assigned inputs
}

type codebookOptions struct {
	rng          *rand.Rand
	initStd      float32
	kmeansSample []float32
	kmeansIters  int
}

// CodebookOption configures codebook construction.
type CodebookOption func(*codebookOptions)

// WithRand sets the random source used for initialization.
// Defaults to a time-seeded source.
func WithRand(rng *rand.Rand) CodebookOption {
	return func(o *codebookOptions) {
		if rng != nil {
			o.rng = rng
		}
	}
}

// WithInitStd sets the standard deviation of the random-normal
// initialization. Defaults to 1.
func WithInitStd(std float32) CodebookOption {
	return func(o *codebookOptions) {
		o.initStd = std
	}
}

// WithKMeansInit seeds the codebook by clustering the given sample of
// latent vectors (flattened, n*codeSize) instead of drawing random noise.
// Falls back to random-normal when the sample holds fewer vectors than
// there are codes.
func WithKMeansInit(sample []float32) CodebookOption {
	return func(o *codebookOptions) {
		o.kmeansSample = sample
	}
}

// NewCodebook allocates a codebook of numCodes vectors of codeSize
// dimensions. EMA counts start at zero and EMA means start as a copy of the
// initial codebook.
func NewCodebook(numCodes, codeSize int, optFns ...CodebookOption) (*Codebook, error) {
	if numCodes <= 0 || codeSize <= 0 {
		return nil, fmt.Errorf("%w: numCodes=%d codeSize=%d", ErrInvalidCodebookSize, numCodes, codeSize)
	}

	opts := codebookOptions{
		initStd:     1,
		kmeansIters: 25,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.rng == nil {
		opts.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	vectors := make([]float32, numCodes*codeSize)

	var seeded bool
	if opts.kmeansSample != nil {
		if centroids := kmeans.Train(opts.rng, opts.kmeansSample, codeSize, numCodes, opts.kmeansIters); centroids != nil {
			copy(vectors, centroids)
			seeded = true
		}
	}
	if !seeded {
		for i := range vectors {
			vectors[i] = float32(opts.rng.NormFloat64()) * opts.initStd
		}
	}

	emaMeans := make([]float32, len(vectors))
	copy(emaMeans, vectors)

	return &Codebook{
		numCodes: numCodes,
		codeSize: codeSize,
		vectors:  vectors,
		emaCount: make([]float32, numCodes),
		emaMeans: emaMeans,
	}, nil
}

// NumCodes returns the number of codebook entries.
func (c *Codebook) NumCodes() int { return c.numCodes }

// CodeSize returns the dimensionality of each entry.
func (c *Codebook) CodeSize() int { return c.codeSize }

// Vector returns a copy of entry k.
func (c *Codebook) Vector(k int) []float32 {
	out := make([]float32, c.codeSize)
	copy(out, c.row(k))
	return out
}

// Vectors returns a copy of the full codebook, flattened.
func (c *Codebook) Vectors() []float32 {
	out := make([]float32, len(c.vectors))
	copy(out, c.vectors)
	return out
}

// EMACount returns a copy of the per-code soft counts.
func (c *Codebook) EMACount() []float32 {
	out := make([]float32, len(c.emaCount))
	copy(out, c.emaCount)
	return out
}

// EMAMeans returns a copy of the per-code moving sums, flattened.
func (c *Codebook) EMAMeans() []float32 {
	out := make([]float32, len(c.emaMeans))
	copy(out, c.emaMeans)
	return out
}

// ApplyUpdate replaces the codebook contents with next (flattened,
// numCodes*codeSize). It must only be called after all reads of the old
// codebook in the current step.
func (c *Codebook) ApplyUpdate(next []float32) error {
	if len(next) != len(c.vectors) {
		return &ErrDimensionMismatch{Expected: len(c.vectors), Actual: len(next)}
	}
	copy(c.vectors, next)
	return nil
}

// Restore overwrites the full codebook state, including EMA accumulators.
// Used when resuming from a checkpoint.
func (c *Codebook) Restore(vectors, emaCount, emaMeans []float32) error {
	if len(vectors) != len(c.vectors) {
		return &ErrDimensionMismatch{Expected: len(c.vectors), Actual: len(vectors)}
	}
	if len(emaCount) != len(c.emaCount) {
		return &ErrDimensionMismatch{Expected: len(c.emaCount), Actual: len(emaCount)}
	}
	if len(emaMeans) != len(c.emaMeans) {
		return &ErrDimensionMismatch{Expected: len(c.emaMeans), Actual: len(emaMeans)}
	}
	copy(c.vectors, vectors)
	copy(c.emaCount, emaCount)
	copy(c.emaMeans, emaMeans)
	return nil
}

func (c *Codebook) row(k int) []float32 {
	return c.vectors[k*c.codeSize : (k+1)*c.codeSize]
}
