package provider

import "context"

// Provider is the base interface all capability backends implement.
type Provider interface {
	// Name returns the provider's unique name.
	Name() string
	// IsAvailable checks if the provider is ready to handle requests.
	IsAvailable(ctx context.Context) bool
}

// RequestResponse represents a provider that takes one input and returns one
// output. This covers the pipeline's external capabilities: transcription,
// diarization, chat completion, embedding, subprocess exec.
type RequestResponse[I, O any] interface {
	Provider
	Execute(ctx context.Context, input I) (O, error)
}

// Sink represents a provider that accepts input with no meaningful output.
// This covers: Kafka produce, webhook, logging.
type Sink[I any] interface {
	Provider
	Send(ctx context.Context, input I) error
}
