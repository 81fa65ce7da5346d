package provider

import (
	"time"

	"github.com/neuralnotes/neuralnotes/resilience"
)

// Limits is the shared throttling policy for external capabilities. One
// limiter and one ceiling exist per capability, shared across all jobs, so
// the worker pool's aggregate load cannot overwhelm a sidecar.
type Limits struct {
	// Rate is the allowed request rate per second per capability.
	Rate float64 `mapstructure:"rate"`
	// Burst is the token-bucket burst size.
	Burst int `mapstructure:"burst"`
	// MaxConcurrent is the concurrent-call ceiling per capability.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// MaxWait is how long a call waits for a concurrency slot before it
	// fails as retryable.
	MaxWait time.Duration `mapstructure:"max_wait"`
}

// ApplyDefaults fills zero fields with the standard policy.
func (l *Limits) ApplyDefaults() {
	if l.Rate <= 0 {
		l.Rate = 5.0
	}
	if l.Burst <= 0 {
		l.Burst = 10
	}
	if l.MaxConcurrent <= 0 {
		l.MaxConcurrent = 4
	}
	if l.MaxWait <= 0 {
		l.MaxWait = 2 * time.Minute
	}
}

// Resilience builds the per-capability resilience policy: a token-bucket
// rate limiter plus a bulkhead, named for logging.
func (l Limits) Resilience(name string) ResilienceConfig {
	l.ApplyDefaults()
	rl := resilience.RateLimiterConfig{Name: name, Rate: l.Rate, Burst: l.Burst}
	bh := resilience.BulkheadConfig{Name: name, MaxConcurrent: l.MaxConcurrent, MaxWait: l.MaxWait}
	return ResilienceConfig{RateLimiter: &rl, Bulkhead: &bh}
}
