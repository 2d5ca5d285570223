package quantize

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEpsilon is returned when the EMA epsilon floor is negative.
	ErrInvalidEpsilon = errors.New("epsilon must not be negative")

	// ErrInvalidCodebookSize is returned when numCodes or codeSize is not positive.
	ErrInvalidCodebookSize = errors.New("numCodes and codeSize must be positive")
)

// ErrDimensionMismatch indicates that a latent batch does not match the
// codebook's dimensions or the documented [batch, latent, codeSize] shape.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDecay indicates an EMA decay outside the open interval (0,1).
type ErrInvalidDecay struct {
	Decay float32
}

func (e *ErrInvalidDecay) Error() string {
	return fmt.Sprintf("invalid EMA decay %v: must be in (0,1)", e.Decay)
}
