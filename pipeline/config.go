package pipeline

import (
	"time"

	"github.com/neuralnotes/neuralnotes/resilience"
)

// Config holds the orchestrator policy.
type Config struct {
	// Workers is the number of concurrent jobs.
	Workers int `mapstructure:"workers"`
	// StageParallelism bounds concurrent stages within one job. The
	// transcribe and diarize stages share a dependency level and run
	// concurrently up to this bound.
	StageParallelism int `mapstructure:"stage_parallelism"`
	// QueueSize bounds jobs waiting for a worker.
	QueueSize int `mapstructure:"queue_size"`
	// Retry is the per-stage retry policy. Only errors classified as
	// transient are retried.
	Retry resilience.RetryConfig `mapstructure:"-"`
	// ArtifactTTL is how long reusable stage artifacts stay cached.
	ArtifactTTL time.Duration `mapstructure:"artifact_ttl"`
}

// ApplyDefaults fills zero fields with the standard policy.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.StageParallelism <= 0 {
		c.StageParallelism = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = resilience.DefaultRetryConfig()
	}
	if c.ArtifactTTL <= 0 {
		c.ArtifactTTL = 24 * time.Hour
	}
}
