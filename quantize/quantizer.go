package quantize

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vqvae/internal/math32"
	"github.com/hupe1980/vqvae/tensor"
)

// Quantizer matches continuous latent vectors against the codebook.
// It is a pure function of its inputs plus the current codebook snapshot
// and holds no trainable parameters of its own.
type Quantizer struct {
	codebook *Codebook
}

// NewQuantizer creates a quantizer over the given codebook.
func NewQuantizer(codebook *Codebook) *Quantizer {
	return &Quantizer{codebook: codebook}
}

// Codebook returns the codebook the quantizer reads from.
func (q *Quantizer) Codebook() *Codebook { return q.codebook }

// Quantize maps every latent-position vector of codes, shaped
// [batch, latent, codeSize], to its nearest codebook entry in Euclidean
// distance. Ties break toward the lowest code index.
//
// It returns the matched entries broadcast back to the input shape and the
// one-hot assignment indicators shaped [batch, latent, numCodes]. Neither
// output is gradient-tracked; differentiability is restored by the
// straight-through estimator in ComposeLoss.
//
// Batch rows are matched in parallel; the parallelism is purely
// data-parallel and the outputs are deterministic.
func (q *Quantizer) Quantize(codes *tensor.Tensor) (nearest, oneHot *tensor.Tensor, err error) {
	if codes.Rank() != 3 {
		return nil, nil, &ErrDimensionMismatch{
			Expected: 3,
			Actual:   codes.Rank(),
			cause:    fmt.Errorf("codes must be [batch, latent, codeSize], got shape %v", codes.Shape()),
		}
	}
	if codes.Dim(-1) != q.codebook.codeSize {
		return nil, nil, &ErrDimensionMismatch{Expected: q.codebook.codeSize, Actual: codes.Dim(-1)}
	}

	batch, latent := codes.Dim(0), codes.Dim(1)
	d := q.codebook.codeSize
	k := q.codebook.numCodes
	rows := batch * latent

	in := codes.Data()
	nearestData := make([]float32, rows*d)
	oneHotData := make([]float32, rows*k)

	workers := runtime.GOMAXPROCS(0)
	if workers > rows {
		workers = rows
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (rows + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > rows {
			hi = rows
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for r := lo; r < hi; r++ {
				vec := in[r*d : (r+1)*d]
				best := q.nearestIndex(vec)
				copy(nearestData[r*d:(r+1)*d], q.codebook.row(best))
				oneHotData[r*k+best] = 1
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	nearest = tensor.FromSlice(nearestData, batch, latent, d)
	oneHot = tensor.FromSlice(oneHotData, batch, latent, k)
	return nearest, oneHot, nil
}

// nearestIndex returns the codebook row closest to vec. Strict less-than
// keeps the lowest index on exact distance ties.
func (q *Quantizer) nearestIndex(vec []float32) int {
	best := 0
	minDist := float32(math.MaxFloat32)
	for j := 0; j < q.codebook.numCodes; j++ {
		dist := math32.SquaredL2(vec, q.codebook.row(j))
		if dist < minDist {
			minDist = dist
			best = j
		}
	}
	return best
}

// Assignments extracts the selected code index per latent position from a
// one-hot tensor shaped [batch, latent, numCodes].
func Assignments(oneHot *tensor.Tensor) []uint32 {
	k := oneHot.Dim(-1)
	rows := oneHot.Numel() / k
	data := oneHot.Data()

	out := make([]uint32, rows)
	for r := 0; r < rows; r++ {
		row := data[r*k : (r+1)*k]
		for j, v := range row {
			if v != 0 {
				out[r] = uint32(j)
				break
			}
		}
	}
	return out
}
