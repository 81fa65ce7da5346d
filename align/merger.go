// Package align fuses raw transcript segments with diarized speaker turns
// into a single speaker-labeled transcript.
package align

import (
	"sort"

	"github.com/neuralnotes/neuralnotes/diarization"
	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/meeting"
)

// Merge assigns a speaker label to each transcript segment by maximal
// temporal overlap with the speaker turns. Ties break deterministically:
// earliest-starting turn first, then lexicographically smallest speaker id.
// Segments overlapping no turn get the unknown-speaker sentinel.
//
// The input transcript is not mutated; Merge returns a new transcript with
// segments ordered by start time.
func Merge(transcript *meeting.Transcript, turns []diarization.Turn) (*meeting.Transcript, error) {
	if transcript == nil {
		return nil, errors.Consistency("merge: missing transcript artifact")
	}
	for _, s := range transcript.Segments {
		if s.End < s.Start {
			return nil, errors.Consistency("merge: segment with negative duration")
		}
	}

	merged := *transcript
	merged.Segments = make([]meeting.TranscriptSegment, len(transcript.Segments))
	copy(merged.Segments, transcript.Segments)
	sort.SliceStable(merged.Segments, func(i, j int) bool {
		return merged.Segments[i].Start < merged.Segments[j].Start
	})

	for i := range merged.Segments {
		merged.Segments[i].Speaker = speakerFor(merged.Segments[i], turns)
	}
	return &merged, nil
}

// speakerFor picks the turn with the largest overlap against the segment.
func speakerFor(seg meeting.TranscriptSegment, turns []diarization.Turn) string {
	best := meeting.UnknownSpeaker
	bestOverlap := 0.0
	bestStart := 0.0

	for _, turn := range turns {
		ov := overlap(seg.Start, seg.End, turn.Start, turn.End)
		if ov <= 0 {
			continue
		}
		switch {
		case ov > bestOverlap:
			best, bestOverlap, bestStart = turn.Speaker, ov, turn.Start
		case ov == bestOverlap:
			// Equal overlap: earlier turn start wins, then smaller speaker id.
			if turn.Start < bestStart || (turn.Start == bestStart && turn.Speaker < best) {
				best, bestStart = turn.Speaker, turn.Start
			}
		}
	}
	return best
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	return end - start
}
