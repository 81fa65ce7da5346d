package meeting

// Chunk is one retrieval unit: a bounded text span of the merged transcript
// with its embedding. Chunks for a meeting are never mutated, only replaced
// wholesale when the meeting is reprocessed.
type Chunk struct {
	MeetingID string `json:"meeting_id"`
	// JobID ties the chunk to the Job that produced it, so a query never
	// mixes chunk sets from two Jobs of the same meeting.
	JobID string `json:"job_id"`
	// Seq is the chunk's position in the chunk sequence.
	Seq int `json:"seq"`

	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	// Speaker is the dominant speaker of the covered span, by speaking time.
	Speaker string `json:"speaker,omitempty"`

	Embedding []float32 `json:"-"`
}

// Citation is the time range of a chunk used to ground an answer.
type Citation struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
}

// QueryResult is the answer to one question about one meeting.
type QueryResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	// Answerable is false when no retrieved chunk cleared the similarity
	// threshold; Answer and Citations are empty in that case.
	Answerable bool `json:"answerable"`
}
