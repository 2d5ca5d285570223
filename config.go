package vqvae

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/vqvae/nn"
	"github.com/hupe1980/vqvae/quantize"
)

// Config holds the model and training hyperparameters.
type Config struct {
	// LearningRate is the initial Adam learning rate.
	LearningRate float32

	// MaxSteps is the number of optimizer steps to run.
	MaxSteps uint64

	// LatentSize is the number of latent code vectors per image.
	LatentSize int

	// NumCodes is the number of discrete codes in the codebook.
	NumCodes int

	// CodeSize is the dimension of each codebook entry.
	CodeSize int

	// EncoderLayers are the hidden layer sizes of the encoder MLP.
	EncoderLayers []int

	// DecoderLayers are the hidden layer sizes of the decoder MLP.
	DecoderLayers []int

	// Activation is the hidden-layer nonlinearity of both MLPs. Empty
	// selects nn.DefaultActivation.
	Activation nn.Activation

	// Beta scales the commitment loss.
	Beta float32

	// Decay is the EMA decay for codebook updates, in (0, 1).
	Decay float32

	// Epsilon floors cluster counts in the EMA update. Zero selects
	// quantize.DefaultEpsilon.
	Epsilon float32

	// BatchSize is the number of images per training batch.
	BatchSize int
}

// DefaultConfig returns the standard hyperparameters.
func DefaultConfig() Config {
	return Config{
		LearningRate:  0.001,
		MaxSteps:      10000,
		LatentSize:    1,
		NumCodes:      64,
		CodeSize:      16,
		EncoderLayers: []int{256, 128},
		DecoderLayers: []int{128, 256},
		Activation:    nn.DefaultActivation,
		Beta:          0.25,
		Decay:         0.99,
		BatchSize:     128,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.LearningRate <= 0 {
		return &ErrInvalidConfig{Field: "LearningRate", Value: c.LearningRate, cause: ErrInvalidLearningRate}
	}
	if c.BatchSize <= 0 {
		return &ErrInvalidConfig{Field: "BatchSize", Value: c.BatchSize, cause: ErrInvalidBatchSize}
	}
	if c.LatentSize <= 0 {
		return &ErrInvalidConfig{Field: "LatentSize", Value: c.LatentSize}
	}
	if c.NumCodes <= 0 {
		return &ErrInvalidConfig{Field: "NumCodes", Value: c.NumCodes, cause: quantize.ErrInvalidCodebookSize}
	}
	if c.CodeSize <= 0 {
		return &ErrInvalidConfig{Field: "CodeSize", Value: c.CodeSize}
	}
	if c.Decay <= 0 || c.Decay >= 1 {
		return &ErrInvalidConfig{Field: "Decay", Value: c.Decay, cause: &quantize.ErrInvalidDecay{Decay: c.Decay}}
	}
	if c.Epsilon < 0 {
		return &ErrInvalidConfig{Field: "Epsilon", Value: c.Epsilon, cause: quantize.ErrInvalidEpsilon}
	}
	if c.Beta <= 0 {
		return &ErrInvalidConfig{Field: "Beta", Value: c.Beta}
	}
	if _, err := nn.ParseActivation(string(c.Activation)); err != nil {
		return &ErrInvalidConfig{Field: "Activation", Value: c.Activation, cause: err}
	}
	for _, n := range c.EncoderLayers {
		if n <= 0 {
			return &ErrInvalidConfig{Field: "EncoderLayers", Value: n}
		}
	}
	for _, n := range c.DecoderLayers {
		if n <= 0 {
			return &ErrInvalidConfig{Field: "DecoderLayers", Value: n}
		}
	}
	return nil
}

// meta flattens the config for checkpoint headers.
func (c Config) meta() map[string]string {
	return map[string]string{
		"learning_rate": fmt.Sprintf("%g", c.LearningRate),
		"latent_size":   strconv.Itoa(c.LatentSize),
		"num_codes":     strconv.Itoa(c.NumCodes),
		"code_size":     strconv.Itoa(c.CodeSize),
		"activation":    string(c.Activation),
		"beta":          fmt.Sprintf("%g", c.Beta),
		"decay":         fmt.Sprintf("%g", c.Decay),
		"batch_size":    strconv.Itoa(c.BatchSize),
	}
}

// ParseLayers parses a comma-separated list of layer sizes, e.g.
// "256,128".
func ParseLayers(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	layers := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid layer size %q: %w", part, err)
		}
		layers = append(layers, n)
	}
	return layers, nil
}
