package vqvae

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrInvalidLearningRate is returned when the learning rate is not positive.
	ErrInvalidLearningRate = errors.New("learning rate must be positive")

	// ErrNoTrainingData is returned when Train is called without a batcher.
	ErrNoTrainingData = errors.New("no training data")
)

// ErrInvalidConfig indicates a configuration field that fails validation.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidConfig struct {
	Field string
	Value any
	cause error
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid config: %s = %v", e.Field, e.Value)
}

func (e *ErrInvalidConfig) Unwrap() error { return e.cause }

// ErrCheckpointMismatch indicates a checkpoint whose shapes do not
// match the model being restored.
type ErrCheckpointMismatch struct {
	What     string
	Expected int
	Actual   int
}

func (e *ErrCheckpointMismatch) Error() string {
	return fmt.Sprintf("checkpoint mismatch: %s expected %d, got %d", e.What, e.Expected, e.Actual)
}
