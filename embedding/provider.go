// Package embedding defines the text-embedding capability interface used by
// the indexer and query engine, plus its backends.
package embedding

import (
	"context"

	"github.com/neuralnotes/neuralnotes/provider"
)

// Request holds one embedding call: a batch of texts embedded together.
type Request struct {
	Texts []string `json:"texts"`
	// Model overrides the backend's default model.
	Model string `json:"model,omitempty"`
}

// Result carries one vector per input text, in input order.
type Result struct {
	Vectors [][]float32 `json:"vectors"`
	Model   string      `json:"model"`
}

// Provider is the interface embedding backends must implement.
type Provider interface {
	provider.Provider

	// Embed returns one vector per input text. The same backend must be
	// used for indexing and querying a given meeting.
	Embed(ctx context.Context, req Request) (*Result, error)
}

// AsRequestResponse adapts a Provider to the generic capability shape so it
// can be wrapped with resilience middleware.
func AsRequestResponse(p Provider) provider.RequestResponse[Request, *Result] {
	return rrAdapter{p}
}

type rrAdapter struct {
	Provider
}

func (a rrAdapter) Execute(ctx context.Context, req Request) (*Result, error) {
	return a.Embed(ctx, req)
}
