package quantize

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vqvae/tensor"
)

// UsageTracker records which codebook entries have been selected since the
// last reset. Dead codes (never selected) are the usual failure mode of a
// collapsing codebook, so the trainer reports them periodically.
type UsageTracker struct {
	numCodes int
	seen     *roaring.Bitmap
}

// NewUsageTracker creates a tracker for a codebook of numCodes entries.
func NewUsageTracker(numCodes int) *UsageTracker {
	return &UsageTracker{
		numCodes: numCodes,
		seen:     roaring.New(),
	}
}

// Observe records the codes selected in one step's assignments.
func (u *UsageTracker) Observe(assignments []uint32) {
	for _, k := range assignments {
		u.seen.Add(k)
	}
}

// ActiveCodes returns how many distinct codes were selected since reset.
func (u *UsageTracker) ActiveCodes() int {
	return int(u.seen.GetCardinality())
}

// DeadCodes returns how many codes were never selected since reset.
func (u *UsageTracker) DeadCodes() int {
	return u.numCodes - u.ActiveCodes()
}

// Used reports whether code k has been selected since reset.
func (u *UsageTracker) Used(k uint32) bool {
	return u.seen.Contains(k)
}

// Reset clears the tracked selections.
func (u *UsageTracker) Reset() {
	u.seen.Clear()
}

// Perplexity computes the assignment perplexity of one step's one-hot
// assignments [batch, latent, numCodes]: exp of the entropy of the
// empirical code distribution. It ranges from 1 (codebook collapse) to
// numCodes (uniform usage).
func Perplexity(oneHot *tensor.Tensor) float64 {
	k := oneHot.Dim(-1)
	rows := oneHot.Numel() / k
	if rows == 0 {
		return 0
	}
	data := oneHot.Data()

	counts := make([]float64, k)
	for r := 0; r < rows; r++ {
		row := data[r*k : (r+1)*k]
		for j, v := range row {
			if v != 0 {
				counts[j] += float64(v)
			}
		}
	}

	total := float64(rows)
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := c / total
		entropy -= p * math.Log(p)
	}
	return math.Exp(entropy)
}
