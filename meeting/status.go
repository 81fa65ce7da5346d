package meeting

// Status is the externally visible processing state of a Meeting.
type Status string

const (
	StatusQueued       Status = "QUEUED"
	StatusNormalizing  Status = "NORMALIZING"
	StatusTranscribing Status = "TRANSCRIBING"
	StatusDiarizing    Status = "DIARIZING"
	StatusMerging      Status = "MERGING"
	StatusSynthesizing Status = "SYNTHESIZING"
	StatusIndexing     Status = "INDEXING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCancelled    Status = "CANCELLED"
)

// statusRank orders the non-terminal states for the monotonicity check.
var statusRank = map[Status]int{
	StatusQueued:       0,
	StatusNormalizing:  1,
	StatusTranscribing: 2,
	StatusDiarizing:    3,
	StatusMerging:      4,
	StatusSynthesizing: 5,
	StatusIndexing:     6,
	StatusCompleted:    7,
}

// IsTerminal reports whether no further transitions are allowed.
// Terminal states are write-once.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is legal.
// Progress states only move forward; FAILED and CANCELLED are reachable
// from any non-terminal state.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed || next == StatusCancelled {
		return true
	}
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	if !okFrom || !okTo {
		return false
	}
	return to > from
}

// Stage is one discrete unit of pipeline work with its own retry and
// idempotency contract.
type Stage string

const (
	StageNormalize  Stage = "normalize"
	StageTranscribe Stage = "transcribe"
	StageDiarize    Stage = "diarize"
	StageMerge      Stage = "merge"
	StageSynthesize Stage = "synthesize"
	StageIndex      Stage = "index"
)

// Stages lists all stages in dependency order. Transcribe and diarize share
// a dependency level; the rest are strictly sequential.
var Stages = []Stage{
	StageNormalize,
	StageTranscribe,
	StageDiarize,
	StageMerge,
	StageSynthesize,
	StageIndex,
}

// StatusFor maps a stage to the Meeting status reported while it runs.
func StatusFor(stage Stage) Status {
	switch stage {
	case StageNormalize:
		return StatusNormalizing
	case StageTranscribe:
		return StatusTranscribing
	case StageDiarize:
		return StatusDiarizing
	case StageMerge:
		return StatusMerging
	case StageSynthesize:
		return StatusSynthesizing
	case StageIndex:
		return StatusIndexing
	default:
		return StatusQueued
	}
}
