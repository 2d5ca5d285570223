package vqvae

import (
	"log/slog"
	"math/rand"

	"github.com/hupe1980/vqvae/checkpoint"
)

type options struct {
	logger             *Logger
	metricsCollector   MetricsCollector
	checkpoints        *checkpoint.Manager
	checkpointInterval uint64
	vizDir             string
	vizInterval        uint64
	logInterval        uint64
	rng                *rand.Rand
	kmeansInit         bool
}

// Option configures a Trainer.
type Option func(*options)

// WithLogger configures structured logging for training.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets
// it. Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithCheckpoints enables periodic checkpointing through the given
// manager. interval is in optimizer steps.
func WithCheckpoints(mgr *checkpoint.Manager, interval uint64) Option {
	return func(o *options) {
		o.checkpoints = mgr
		o.checkpointInterval = interval
	}
}

// WithVizDir enables periodic image-grid dumps (inputs,
// reconstructions, prior samples) under dir. interval is in optimizer
// steps.
func WithVizDir(dir string, interval uint64) Option {
	return func(o *options) {
		o.vizDir = dir
		o.vizInterval = interval
	}
}

// WithLogInterval sets how often progress is logged at info level
// (default 100 steps).
func WithLogInterval(interval uint64) Option {
	return func(o *options) {
		o.logInterval = interval
	}
}

// WithRand sets the random source for parameter init and sampling.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

// WithKMeansInit initializes the codebook by clustering the first
// training batch instead of drawing from a normal distribution.
func WithKMeansInit() Option {
	return func(o *options) {
		o.kmeansInit = true
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		logInterval:      100,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
