// Package diarization defines the speaker-segmentation capability interface
// and its backends.
package diarization

import (
	"context"

	"github.com/neuralnotes/neuralnotes/provider"
)

// Provider is the interface diarization backends must implement.
type Provider interface {
	provider.Provider

	// Diarize segments canonical audio into ordered speaker turns.
	Diarize(ctx context.Context, req Request) (*Result, error)
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
	return a.Diarize(ctx, req)
}
