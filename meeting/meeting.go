// Package meeting defines the domain records shared across the pipeline:
// meetings, jobs, transcripts, summaries, chunks, and query results.
package meeting

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Meeting is the durable record for one ingested recording. Its status is
// mutated only by the pipeline orchestrator.
type Meeting struct {
	ID string `json:"id"`
	// Owner references the uploading user; opaque to the core.
	Owner string `json:"owner"`
	// AudioRef points at the raw uploaded audio in the blob store.
	AudioRef string `json:"audio_ref"`
	// CanonicalRef points at the normalized waveform, set after NORMALIZING.
	CanonicalRef string `json:"canonical_ref,omitempty"`
	// Checksum is the SHA-256 of the canonical waveform, the idempotency
	// key for downstream stage-skip logic.
	Checksum string `json:"checksum,omitempty"`

	Status Status `json:"status"`
	// Queryable is true only while a completed Job's artifacts are current.
	Queryable bool `json:"queryable"`

	// StageTimes records when each stage finished, for the status projection.
	StageTimes map[Stage]time.Time `json:"stage_times,omitempty"`
	// ErrorReason holds the stable failure classification, nil unless FAILED.
	ErrorReason *FailureReason `json:"error_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FailureReason is the user-visible failure detail: which stage failed and a
// stable classification of why.
type FailureReason struct {
	Stage   Stage  `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is one processing attempt of a Meeting through the full stage
// sequence. At most one Job per Meeting is active at any time.
type Job struct {
	ID        string `json:"id"`
	MeetingID string `json:"meeting_id"`

	// Stage is the stage currently executing or last executed.
	Stage Stage `json:"stage"`
	// Retries counts retry attempts per stage (0 = succeeded first try).
	Retries map[Stage]int `json:"retries,omitempty"`

	// Outcome is the terminal status once the Job finishes, empty while active.
	Outcome Status `json:"outcome,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Active reports whether the Job has not reached a terminal outcome.
func (j *Job) Active() bool {
	return j.Outcome == ""
}

// NewMeetingID returns an identifier shaped mtg_<8 hex>.
func NewMeetingID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return "mtg_" + hex.EncodeToString(b[:])
}

// NewJobID returns a UUID job identifier.
func NewJobID() string {
	return uuid.NewString()
}
