package provider

import "context"

// Status represents the health status of a provider.
type Status int

const (
	// StatusHealthy indicates the provider is fully operational.
	StatusHealthy Status = iota
	// StatusDegraded indicates the provider is operational with reduced capability.
	StatusDegraded
	// StatusUnavailable indicates the provider cannot handle requests.
	StatusUnavailable
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// HealthStatus contains detailed health information for a provider.
type HealthStatus struct {
	// Status is the overall health status.
	Status Status
	// Message is a human-readable description of the health state.
	Message string
	// Details contains additional health metadata (latency, pool size, etc).
	Details map[string]any
}

// HealthChecker is optionally implemented by providers that can report
// detailed health beyond the simple IsAvailable() bool check.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// CheckAll probes every named provider and returns a per-name health report.
// Providers implementing HealthChecker report their detailed status; the rest
// are reduced to healthy/unavailable from IsAvailable.
func CheckAll(ctx context.Context, providers map[string]Provider) map[string]HealthStatus {
	report := make(map[string]HealthStatus, len(providers))
	for name, p := range providers {
		if hc, ok := p.(HealthChecker); ok {
			report[name] = hc.Health(ctx)
			continue
		}
		if p.IsAvailable(ctx) {
			report[name] = HealthStatus{Status: StatusHealthy}
		} else {
			report[name] = HealthStatus{Status: StatusUnavailable, Message: "not reachable"}
		}
	}
	return report
}
