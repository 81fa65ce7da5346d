package transcription

import (
	"context"

	"github.com/neuralnotes/neuralnotes/meeting"
	"github.com/neuralnotes/neuralnotes/provider"
)

// WithResilience wraps a backend with the standard resilience chain. The
// rate limiter and bulkhead are shared by every caller of the returned
// provider. Empty config returns the backend unchanged.
func WithResilience(p Provider, cfg provider.ResilienceConfig) Provider {
	if cfg.IsEmpty() {
		return p
	}
	return &resilientProvider{rr: provider.WithResilience(AsRequestResponse(p), cfg)}
}

type resilientProvider struct {
	rr provider.RequestResponse[Request, *meeting.Transcript]
}

func (r *resilientProvider) Name() string                         { return r.rr.Name() }
func (r *resilientProvider) IsAvailable(ctx context.Context) bool { return r.rr.IsAvailable(ctx) }

func (r *resilientProvider) Transcribe(ctx context.Context, req Request) (*meeting.Transcript, error) {
	return r.rr.Execute(ctx, req)
}
