// Package index chunks merged transcripts, embeds the chunks, and stores
// them in a vector store for retrieval.
package index

import (
	"fmt"
	"strings"

	"github.com/neuralnotes/neuralnotes/meeting"
)

// ChunkerConfig holds the chunking policy.
type ChunkerConfig struct {
	// Size is the target chunk size in characters.
	Size int `mapstructure:"size"`
	// Overlap is the fraction of Size carried over between adjacent chunks
	// so context is not lost at chunk boundaries.
	Overlap float64 `mapstructure:"overlap"`
}

// ApplyDefaults fills zero fields with the standard policy.
func (c *ChunkerConfig) ApplyDefaults() {
	if c.Size <= 0 {
		c.Size = 1200
	}
	if c.Overlap <= 0 || c.Overlap >= 1 {
		c.Overlap = 0.15
	}
}

// BuildChunks splits a merged transcript into overlapping chunks. Chunk
// boundaries fall on segment boundaries; the trailing segments of one chunk
// seed the next until the overlap budget is covered. Seq is contiguous from
// zero, and time ranges come from the covered segments.
func BuildChunks(meetingID, jobID string, segments []meeting.TranscriptSegment, cfg ChunkerConfig) []meeting.Chunk {
	cfg.ApplyDefaults()
	if len(segments) == 0 {
		return nil
	}
	overlapBudget := int(float64(cfg.Size) * cfg.Overlap)

	var chunks []meeting.Chunk
	start := 0
	for start < len(segments) {
		end := start
		size := 0
		for end < len(segments) {
			size += renderedLen(segments[end])
			end++
			if size >= cfg.Size {
				break
			}
		}

		chunks = append(chunks, meeting.Chunk{
			MeetingID: meetingID,
			JobID:     jobID,
			Seq:       len(chunks),
			Text:      renderSpan(segments[start:end]),
			Start:     segments[start].Start,
			End:       segments[end-1].End,
			Speaker:   dominantSpeaker(segments[start:end]),
		})

		if end >= len(segments) {
			break
		}

		// Walk back from the boundary until the overlap budget is covered,
		// but always advance by at least one segment.
		next := end
		carried := 0
		for next > start+1 && carried < overlapBudget {
			next--
			carried += renderedLen(segments[next])
		}
		start = next
	}
	return chunks
}

func renderedLen(s meeting.TranscriptSegment) int {
	return len(s.Text) + len(s.Speaker) + 3
}

// dominantSpeaker picks the speaker with the most speaking time in the
// span. Ties go to the lexicographically smaller identifier so the result
// is deterministic.
func dominantSpeaker(segments []meeting.TranscriptSegment) string {
	totals := make(map[string]float64)
	for _, s := range segments {
		totals[s.Speaker] += s.End - s.Start
	}
	best := ""
	bestTotal := -1.0
	for speaker, total := range totals {
		if total > bestTotal || (total == bestTotal && speaker < best) {
			best = speaker
			bestTotal = total
		}
	}
	return best
}

// renderSpan formats segments as "speaker: text" lines.
func renderSpan(segments []meeting.TranscriptSegment) string {
	var b strings.Builder
	for i, s := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", s.Speaker, s.Text)
	}
	return b.String()
}
