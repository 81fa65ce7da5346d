// Package llm defines the language-model capability interface used by the
// synthesis and query engines, plus its backends.
package llm

import (
	"context"

	"github.com/neuralnotes/neuralnotes/provider"
)

// Provider is the interface LLM backends must implement.
type Provider interface {
	provider.Provider // embeds Name() and IsAvailable()

	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CompleteStructured sends a completion request expecting structured JSON
	// output. The schema parameter hints at the desired response structure.
	CompleteStructured(ctx context.Context, req CompletionRequest, schema any) (*CompletionResponse, error)
}

