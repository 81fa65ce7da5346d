package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/meeting"
)

// MemoryStore is an in-process Store for tests and single-node runs without
// a database.
type MemoryStore struct {
	mu        sync.RWMutex
	meetings  map[string]meeting.Meeting
	jobs      map[string]meeting.Job
	artifacts []Artifact
	summaries map[string]meeting.Summary
	nextID    uint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meetings:  make(map[string]meeting.Meeting),
		jobs:      make(map[string]meeting.Job),
		summaries: make(map[string]meeting.Summary),
	}
}

// PutMeeting inserts or updates a meeting record.
func (s *MemoryStore) PutMeeting(_ context.Context, m *meeting.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[m.ID] = copyMeeting(m)
	return nil
}

// GetMeeting returns the meeting or NotFound.
func (s *MemoryStore) GetMeeting(_ context.Context, id string) (*meeting.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, errors.NotFound("meeting", id)
	}
	cp := copyMeeting(&m)
	return &cp, nil
}

// ListMeetings returns all meetings, newest first.
func (s *MemoryStore) ListMeetings(_ context.Context) ([]meeting.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]meeting.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		out = append(out, copyMeeting(&m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CreateJob inserts a job, rejecting a second active job for the meeting.
func (s *MemoryStore) CreateJob(_ context.Context, job *meeting.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.MeetingID == job.MeetingID && existing.Active() {
			return errors.AlreadyActive(job.MeetingID)
		}
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// PutJob updates an existing job record.
func (s *MemoryStore) PutJob(_ context.Context, job *meeting.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return errors.NotFound("job", job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// GetJob returns the job or NotFound.
func (s *MemoryStore) GetJob(_ context.Context, id string) (*meeting.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, errors.NotFound("job", id)
	}
	cp := copyJob(&j)
	return &cp, nil
}

// ActiveJob returns the meeting's active job, or nil when none exists.
func (s *MemoryStore) ActiveJob(_ context.Context, meetingID string) (*meeting.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.MeetingID == meetingID && j.Active() {
			cp := copyJob(&j)
			return &cp, nil
		}
	}
	return nil, nil
}

// AppendArtifact records a stage output.
func (s *MemoryStore) AppendArtifact(_ context.Context, a *Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *a
	cp.ID = s.nextID
	cp.Payload = append([]byte(nil), a.Payload...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	a.ID = cp.ID
	s.artifacts = append(s.artifacts, cp)
	return nil
}

// FindArtifact returns the newest matching artifact, or nil when none exists.
func (s *MemoryStore) FindArtifact(_ context.Context, meetingID string, stage meeting.Stage, inputChecksum string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.artifacts) - 1; i >= 0; i-- {
		a := s.artifacts[i]
		if a.MeetingID == meetingID && a.Stage == stage && a.InputChecksum == inputChecksum {
			cp := a
			cp.Payload = append([]byte(nil), a.Payload...)
			return &cp, nil
		}
	}
	return nil, nil
}

// ArtifactsForJob returns all artifacts recorded by one job, oldest first.
func (s *MemoryStore) ArtifactsForJob(_ context.Context, jobID string) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Artifact
	for _, a := range s.artifacts {
		if a.JobID == jobID {
			cp := a
			cp.Payload = append([]byte(nil), a.Payload...)
			out = append(out, cp)
		}
	}
	return out, nil
}

// PutSummary inserts or replaces the meeting's summary.
func (s *MemoryStore) PutSummary(_ context.Context, sum *meeting.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sum.MeetingID] = *sum
	return nil
}

// GetSummary returns the meeting's summary or NotFound.
func (s *MemoryStore) GetSummary(_ context.Context, meetingID string) (*meeting.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[meetingID]
	if !ok {
		return nil, errors.NotFound("summary", meetingID)
	}
	cp := sum
	return &cp, nil
}

func copyMeeting(m *meeting.Meeting) meeting.Meeting {
	cp := *m
	if m.StageTimes != nil {
		cp.StageTimes = make(map[meeting.Stage]time.Time, len(m.StageTimes))
		for k, v := range m.StageTimes {
			cp.StageTimes[k] = v
		}
	}
	if m.ErrorReason != nil {
		reason := *m.ErrorReason
		cp.ErrorReason = &reason
	}
	return cp
}

func copyJob(j *meeting.Job) meeting.Job {
	cp := *j
	if j.Retries != nil {
		cp.Retries = make(map[meeting.Stage]int, len(j.Retries))
		for k, v := range j.Retries {
			cp.Retries[k] = v
		}
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}

var _ Store = (*MemoryStore)(nil)
