package llm

import (
	"context"

	"github.com/neuralnotes/neuralnotes/provider"
)

// WithResilience wraps both completion paths of a backend with the standard
// resilience chain. Empty config returns the backend unchanged.
func WithResilience(p Provider, cfg provider.ResilienceConfig) Provider {
	if cfg.IsEmpty() {
		return p
	}
	return &resilientProvider{inner: p, state: provider.BuildResilience(cfg)}
}

type resilientProvider struct {
	inner Provider
	state *provider.ResilienceState
}

func (r *resilientProvider) Name() string                         { return r.inner.Name() }
func (r *resilientProvider) IsAvailable(ctx context.Context) bool { return r.inner.IsAvailable(ctx) }

func (r *resilientProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return provider.ExecuteWithResilience(ctx, r.state, func() (*CompletionResponse, error) {
		return r.inner.Complete(ctx, req)
	})
}

func (r *resilientProvider) CompleteStructured(ctx context.Context, req CompletionRequest, schema any) (*CompletionResponse, error) {
	return provider.ExecuteWithResilience(ctx, r.state, func() (*CompletionResponse, error) {
		return r.inner.CompleteStructured(ctx, req, schema)
	})
}
