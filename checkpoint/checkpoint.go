package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/vqvae/codec"
)

// File layout: magic, format version, compression byte, codec name
// (length-prefixed), then one compressed block holding the encoded
// payload.
var magic = []byte("VQCP")

const formatVersion = 1

// ErrBadFormat indicates bytes that are not a valid checkpoint file.
var ErrBadFormat = errors.New("invalid checkpoint format")

// TensorState is the persisted form of a named parameter tensor.
type TensorState struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// Checkpoint is a full snapshot of training state.
type Checkpoint struct {
	// Step is the number of completed optimizer steps.
	Step uint64 `json:"step"`

	// CreatedAt records when the snapshot was taken.
	CreatedAt time.Time `json:"created_at"`

	// Meta carries trainer configuration for sanity checks on resume.
	Meta map[string]string `json:"meta,omitempty"`

	// Params are the gradient-trained tensors, in registration order.
	Params []TensorState `json:"params"`

	// Codebook state, including the EMA accumulators that the update
	// rule needs to continue from where it left off.
	NumCodes int       `json:"num_codes"`
	CodeSize int       `json:"code_size"`
	Codebook []float32 `json:"codebook"`
	EMACount []float32 `json:"ema_count"`
	EMAMeans []float32 `json:"ema_means"`
}

// Encode serializes the checkpoint with the given codec and
// compression. A nil codec uses codec.Default.
func Encode(ckpt *Checkpoint, c codec.Codec, compression Compression) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}

	payload, err := c.Marshal(ckpt)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}

	block, err := compressBlock(payload, compression)
	if err != nil {
		return nil, fmt.Errorf("compress checkpoint: %w", err)
	}

	name := c.Name()
	if len(name) > 255 {
		return nil, fmt.Errorf("codec name %q too long", name)
	}

	out := make([]byte, 0, len(magic)+3+len(name)+len(block))
	out = append(out, magic...)
	out = append(out, formatVersion, byte(compression), byte(len(name)))
	out = append(out, name...)
	out = append(out, block...)
	return out, nil
}

// Decode parses checkpoint bytes. The codec and compression are taken
// from the file header.
func Decode(data []byte) (*Checkpoint, error) {
	if len(data) < len(magic)+3 {
		return nil, ErrBadFormat
	}
	if string(data[:len(magic)]) != string(magic) {
		return nil, fmt.Errorf("%w: bad magic", ErrBadFormat)
	}
	data = data[len(magic):]

	version := data[0]
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, version)
	}
	compression := Compression(data[1])
	nameLen := int(data[2])
	data = data[3:]

	if len(data) < nameLen {
		return nil, ErrBadFormat
	}
	codecName := string(data[:nameLen])
	data = data[nameLen:]

	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrBadFormat, codecName)
	}

	payload, err := decompressBlock(data, compression)
	if err != nil {
		return nil, fmt.Errorf("decompress checkpoint: %w", err)
	}

	var ckpt Checkpoint
	if err := c.Unmarshal(payload, &ckpt); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}

	if err := ckpt.validate(); err != nil {
		return nil, err
	}
	return &ckpt, nil
}

func (c *Checkpoint) validate() error {
	if c.NumCodes < 0 || c.CodeSize < 0 {
		return fmt.Errorf("%w: negative codebook dimensions", ErrBadFormat)
	}
	want := c.NumCodes * c.CodeSize
	if len(c.Codebook) != want || len(c.EMAMeans) != want {
		return fmt.Errorf("%w: codebook state does not match %dx%d", ErrBadFormat, c.NumCodes, c.CodeSize)
	}
	if len(c.EMACount) != c.NumCodes {
		return fmt.Errorf("%w: ema count length %d for %d codes", ErrBadFormat, len(c.EMACount), c.NumCodes)
	}
	return nil
}
