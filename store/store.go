// Package store is the persistence boundary for meetings, jobs, stage
// artifacts, and summaries. Implementations provide atomic per-record
// operations; cross-record invariants (such as the single-active-job rule)
// are enforced inside CreateJob.
package store

import (
	"context"
	"time"

	"github.com/neuralnotes/neuralnotes/meeting"
)

// Artifact is the durable output of one pipeline stage for one job,
// serialized as JSON. InputChecksum identifies the stage input so a later
// job over identical input can reuse the artifact.
type Artifact struct {
	ID            uint          `json:"-"`
	MeetingID     string        `json:"meeting_id"`
	JobID         string        `json:"job_id"`
	Stage         meeting.Stage `json:"stage"`
	InputChecksum string        `json:"input_checksum"`
	Payload       []byte        `json:"payload"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Store persists the pipeline's durable records. Writes are atomic per
// record. Lookups for absent records return a NotFound AppError, except
// where noted.
type Store interface {
	// PutMeeting inserts or updates a meeting record.
	PutMeeting(ctx context.Context, m *meeting.Meeting) error
	// GetMeeting returns the meeting or NotFound.
	GetMeeting(ctx context.Context, id string) (*meeting.Meeting, error)
	// ListMeetings returns all meetings, newest first.
	ListMeetings(ctx context.Context) ([]meeting.Meeting, error)

	// CreateJob inserts a new job. It fails with AlreadyActive when the
	// meeting already has a job with no terminal outcome; the check and the
	// insert are one atomic step.
	CreateJob(ctx context.Context, job *meeting.Job) error
	// PutJob updates an existing job record.
	PutJob(ctx context.Context, job *meeting.Job) error
	// GetJob returns the job or NotFound.
	GetJob(ctx context.Context, id string) (*meeting.Job, error)
	// ActiveJob returns the meeting's active job, or (nil, nil) when the
	// meeting has none.
	ActiveJob(ctx context.Context, meetingID string) (*meeting.Job, error)

	// AppendArtifact records a stage output. Artifacts are append-only.
	AppendArtifact(ctx context.Context, a *Artifact) error
	// FindArtifact returns the most recent artifact for the meeting, stage,
	// and input checksum, or (nil, nil) when none exists.
	FindArtifact(ctx context.Context, meetingID string, stage meeting.Stage, inputChecksum string) (*Artifact, error)
	// ArtifactsForJob returns all artifacts recorded by one job.
	ArtifactsForJob(ctx context.Context, jobID string) ([]Artifact, error)

	// PutSummary inserts or replaces the meeting's summary.
	PutSummary(ctx context.Context, s *meeting.Summary) error
	// GetSummary returns the meeting's summary or NotFound.
	GetSummary(ctx context.Context, meetingID string) (*meeting.Summary, error)
}
