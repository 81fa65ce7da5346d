package transcription

// Request holds parameters for one transcription call. Audio is the
// canonical mono WAV produced by the normalizer.
type Request struct {
	Audio []byte `json:"-"`
	// Language is the expected language of the audio (e.g. "en").
	// Empty lets the backend detect it.
	Language string `json:"language,omitempty"`
	// Model overrides the backend's configured model.
	Model string `json:"model,omitempty"`
}
