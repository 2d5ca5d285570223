package mnist

import (
	"math/rand"

	"github.com/hupe1980/vqvae/tensor"
)

// BinarizeThreshold is the cutoff above which a pixel becomes 1.
const BinarizeThreshold = 0.5

// Batcher serves fixed-size batches of binarized images, reshuffling
// the dataset at each epoch boundary.
type Batcher struct {
	ds        *Dataset
	batchSize int
	rng       *rand.Rand
	order     []int
	pos       int
}

// NewBatcher wraps ds. batchSize must not exceed ds.N.
func NewBatcher(ds *Dataset, batchSize int, rng *rand.Rand) *Batcher {
	if batchSize <= 0 || batchSize > ds.N {
		panic("mnist: batch size out of range")
	}
	b := &Batcher{
		ds:        ds,
		batchSize: batchSize,
		rng:       rng,
		order:     make([]int, ds.N),
	}
	for i := range b.order {
		b.order[i] = i
	}
	b.shuffle()
	return b
}

// Next returns the next batch as a [batchSize, pixels] tensor of 0/1
// values.
func (b *Batcher) Next() *tensor.Tensor {
	if b.pos+b.batchSize > len(b.order) {
		b.shuffle()
	}

	pixels := b.ds.Pixels()
	data := make([]float32, b.batchSize*pixels)
	for i := 0; i < b.batchSize; i++ {
		src := b.ds.Image(b.order[b.pos+i])
		dst := data[i*pixels : (i+1)*pixels]
		for j, v := range src {
			if v > BinarizeThreshold {
				dst[j] = 1
			}
		}
	}
	b.pos += b.batchSize

	return tensor.FromSlice(data, b.batchSize, pixels)
}

func (b *Batcher) shuffle() {
	b.rng.Shuffle(len(b.order), func(i, j int) {
		b.order[i], b.order[j] = b.order[j], b.order[i]
	})
	b.pos = 0
}
