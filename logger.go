package vqvae

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with training-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithStep adds a step field to the logger.
func (l *Logger) WithStep(step uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("step", step),
	}
}

// LogStep logs one optimizer step.
func (l *Logger) LogStep(ctx context.Context, step uint64, result *StepResult) {
	l.DebugContext(ctx, "training step",
		"step", step,
		"loss", result.Loss,
		"reconstruction", result.Reconstruction,
		"commitment", result.Commitment,
		"perplexity", result.Perplexity,
	)
}

// LogProgress logs periodic training progress at info level.
func (l *Logger) LogProgress(ctx context.Context, step uint64, result *StepResult, activeCodes, numCodes int) {
	l.InfoContext(ctx, "training progress",
		"step", step,
		"loss", result.Loss,
		"reconstruction", result.Reconstruction,
		"commitment", result.Commitment,
		"perplexity", result.Perplexity,
		"active_codes", activeCodes,
		"num_codes", numCodes,
	)
}

// LogCheckpoint logs a checkpoint save.
func (l *Logger) LogCheckpoint(ctx context.Context, step uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"step", step,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "checkpoint saved",
			"step", step,
		)
	}
}

// LogRestore logs a checkpoint restore.
func (l *Logger) LogRestore(ctx context.Context, step uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"step", step,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "restored from checkpoint",
			"step", step,
		)
	}
}

// LogViz logs a visualization dump.
func (l *Logger) LogViz(ctx context.Context, step uint64, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "visualization failed",
			"step", step,
			"path", path,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "visualization saved",
			"step", step,
			"path", path,
		)
	}
}
