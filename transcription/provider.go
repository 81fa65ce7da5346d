// Package transcription defines the speech-to-text capability interface and
// its backends. Backends classify failures into the shared error taxonomy
// and never retry internally; retry policy belongs to the orchestrator.
package transcription

import (
	"context"

	"github.com/neuralnotes/neuralnotes/meeting"
	"github.com/neuralnotes/neuralnotes/provider"
)

// Provider is the interface transcription backends must implement.
type Provider interface {
	provider.Provider // embeds Name() and IsAvailable()

	// Transcribe sends canonical audio for recognition and returns the
	// ordered, timestamped transcript.
	Transcribe(ctx context.Context, req Request) (*meeting.Transcript, error)
}

// AsRequestResponse adapts a Provider to the generic capability shape so it
// can be wrapped with resilience middleware.
func AsRequestResponse(p Provider) provider.RequestResponse[Request, *meeting.Transcript] {
	return rrAdapter{p}
}

type rrAdapter struct {
	Provider
}

func (a rrAdapter) Execute(ctx context.Context, req Request) (*meeting.Transcript, error) {
	return a.Transcribe(ctx, req)
}
