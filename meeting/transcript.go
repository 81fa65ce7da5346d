package meeting

// UnknownSpeaker is the sentinel label for transcript segments with no
// temporal overlap with any diarized speaker turn.
const UnknownSpeaker = "unknown"

// TranscriptSegment is a timestamped span of recognized speech. Speaker is
// empty on raw ASR output and assigned by the alignment merger.
type TranscriptSegment struct {
	// Start and End are offsets into the recording, in seconds.
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Duration returns the segment length in seconds.
func (s TranscriptSegment) Duration() float64 {
	return s.End - s.Start
}

// SpeakerTurn is one raw diarization interval: who spoke, and when.
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Transcript is the ordered segment list plus the recognition metadata the
// ASR backend reports.
type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`

	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	WordCount       int     `json:"word_count"`
	Model           string  `json:"model,omitempty"`
	ProcessingMS    int64   `json:"processing_ms,omitempty"`
}

// FullText concatenates all segment texts in order, space separated.
func (t *Transcript) FullText() string {
	var n int
	for _, s := range t.Segments {
		n += len(s.Text) + 1
	}
	buf := make([]byte, 0, n)
	for i, s := range t.Segments {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, s.Text...)
	}
	return string(buf)
}
