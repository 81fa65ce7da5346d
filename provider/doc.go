// Package provider defines the generic capability abstraction the pipeline
// talks to external services through. A capability backend (transcription,
// diarization, chat completion, embedding) implements RequestResponse[I, O];
// notification sinks implement Sink[I]. WithResilience composes rate
// limiting, bulkheads, circuit breaking, and retry around any backend
// without the backend knowing.
package provider
