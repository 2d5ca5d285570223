package vqvae

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting training metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordStep is called after each optimizer step.
	// duration is the total time taken, err is nil if successful.
	RecordStep(duration time.Duration, err error)

	// RecordCheckpoint is called after each checkpoint save.
	RecordCheckpoint(duration time.Duration, err error)

	// RecordViz is called after each visualization dump.
	RecordViz(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordStep(time.Duration, error)       {}
func (NoopMetricsCollector) RecordCheckpoint(time.Duration, error) {}
func (NoopMetricsCollector) RecordViz(time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	StepCount            atomic.Int64
	StepErrors           atomic.Int64
	StepTotalNanos       atomic.Int64
	CheckpointCount      atomic.Int64
	CheckpointErrors     atomic.Int64
	CheckpointTotalNanos atomic.Int64
	VizCount             atomic.Int64
	VizErrors            atomic.Int64
}

// RecordStep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStep(duration time.Duration, err error) {
	b.StepCount.Add(1)
	b.StepTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.StepErrors.Add(1)
	}
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(duration time.Duration, err error) {
	b.CheckpointCount.Add(1)
	b.CheckpointTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CheckpointErrors.Add(1)
	}
}

// RecordViz implements MetricsCollector.
func (b *BasicMetricsCollector) RecordViz(duration time.Duration, err error) {
	b.VizCount.Add(1)
	if err != nil {
		b.VizErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		StepCount:        b.StepCount.Load(),
		StepErrors:       b.StepErrors.Load(),
		StepAvgNanos:     b.avgStepNanos(),
		CheckpointCount:  b.CheckpointCount.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
		VizCount:         b.VizCount.Load(),
		VizErrors:        b.VizErrors.Load(),
	}
}

func (b *BasicMetricsCollector) avgStepNanos() int64 {
	count := b.StepCount.Load()
	if count == 0 {
		return 0
	}
	return b.StepTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	StepCount        int64
	StepErrors       int64
	StepAvgNanos     int64
	CheckpointCount  int64
	CheckpointErrors int64
	VizCount         int64
	VizErrors        int64
}
