package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neuralnotes/neuralnotes/meeting"
)

// Row types map the domain records onto flat SQLite tables. Map-shaped and
// slice-shaped fields are stored as JSON blobs.

type meetingRow struct {
	ID           string `gorm:"primaryKey"`
	Owner        string `gorm:"index"`
	AudioRef     string
	CanonicalRef string
	Checksum     string
	Status       string
	Queryable    bool
	StageTimes   []byte
	ErrorReason  []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (meetingRow) TableName() string { return "meetings" }

type jobRow struct {
	ID         string `gorm:"primaryKey"`
	MeetingID  string `gorm:"index:idx_jobs_meeting"`
	Stage      string
	Retries    []byte
	Outcome    string `gorm:"index:idx_jobs_meeting"`
	CreatedAt  time.Time
	FinishedAt *time.Time
}

func (jobRow) TableName() string { return "jobs" }

type artifactRow struct {
	ID            uint   `gorm:"primaryKey"`
	MeetingID     string `gorm:"index:idx_artifacts_lookup"`
	JobID         string `gorm:"index"`
	Stage         string `gorm:"index:idx_artifacts_lookup"`
	InputChecksum string `gorm:"index:idx_artifacts_lookup"`
	Payload       []byte
	CreatedAt     time.Time
}

func (artifactRow) TableName() string { return "stage_artifacts" }

type chunkRow struct {
	ID        uint   `gorm:"primaryKey"`
	MeetingID string `gorm:"index"`
	JobID     string
	Seq       int
	Text      string
	Start     float64
	End       float64
	Speaker   string
	Embedding []byte
}

func (chunkRow) TableName() string { return "chunks" }

type summaryRow struct {
	MeetingID   string `gorm:"primaryKey"`
	JobID       string
	Topics      []byte
	Decisions   []byte
	ActionItems []byte
	UpdatedAt   time.Time
}

func (summaryRow) TableName() string { return "summaries" }

func toMeetingRow(m *meeting.Meeting) (*meetingRow, error) {
	row := &meetingRow{
		ID:           m.ID,
		Owner:        m.Owner,
		AudioRef:     m.AudioRef,
		CanonicalRef: m.CanonicalRef,
		Checksum:     m.Checksum,
		Status:       string(m.Status),
		Queryable:    m.Queryable,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if len(m.StageTimes) > 0 {
		b, err := json.Marshal(m.StageTimes)
		if err != nil {
			return nil, fmt.Errorf("store: encode stage times: %w", err)
		}
		row.StageTimes = b
	}
	if m.ErrorReason != nil {
		b, err := json.Marshal(m.ErrorReason)
		if err != nil {
			return nil, fmt.Errorf("store: encode error reason: %w", err)
		}
		row.ErrorReason = b
	}
	return row, nil
}

func fromMeetingRow(row *meetingRow) (*meeting.Meeting, error) {
	m := &meeting.Meeting{
		ID:           row.ID,
		Owner:        row.Owner,
		AudioRef:     row.AudioRef,
		CanonicalRef: row.CanonicalRef,
		Checksum:     row.Checksum,
		Status:       meeting.Status(row.Status),
		Queryable:    row.Queryable,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if len(row.StageTimes) > 0 {
		if err := json.Unmarshal(row.StageTimes, &m.StageTimes); err != nil {
			return nil, fmt.Errorf("store: decode stage times: %w", err)
		}
	}
	if len(row.ErrorReason) > 0 {
		m.ErrorReason = &meeting.FailureReason{}
		if err := json.Unmarshal(row.ErrorReason, m.ErrorReason); err != nil {
			return nil, fmt.Errorf("store: decode error reason: %w", err)
		}
	}
	return m, nil
}

func toJobRow(j *meeting.Job) (*jobRow, error) {
	row := &jobRow{
		ID:         j.ID,
		MeetingID:  j.MeetingID,
		Stage:      string(j.Stage),
		Outcome:    string(j.Outcome),
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
	}
	if len(j.Retries) > 0 {
		b, err := json.Marshal(j.Retries)
		if err != nil {
			return nil, fmt.Errorf("store: encode retries: %w", err)
		}
		row.Retries = b
	}
	return row, nil
}

func fromJobRow(row *jobRow) (*meeting.Job, error) {
	j := &meeting.Job{
		ID:         row.ID,
		MeetingID:  row.MeetingID,
		Stage:      meeting.Stage(row.Stage),
		Outcome:    meeting.Status(row.Outcome),
		CreatedAt:  row.CreatedAt,
		FinishedAt: row.FinishedAt,
	}
	if len(row.Retries) > 0 {
		if err := json.Unmarshal(row.Retries, &j.Retries); err != nil {
			return nil, fmt.Errorf("store: decode retries: %w", err)
		}
	}
	return j, nil
}

func toChunkRow(c *meeting.Chunk) (*chunkRow, error) {
	emb, err := json.Marshal(c.Embedding)
	if err != nil {
		return nil, fmt.Errorf("store: encode embedding: %w", err)
	}
	return &chunkRow{
		MeetingID: c.MeetingID,
		JobID:     c.JobID,
		Seq:       c.Seq,
		Text:      c.Text,
		Start:     c.Start,
		End:       c.End,
		Speaker:   c.Speaker,
		Embedding: emb,
	}, nil
}

func fromChunkRow(row *chunkRow) (*meeting.Chunk, error) {
	c := &meeting.Chunk{
		MeetingID: row.MeetingID,
		JobID:     row.JobID,
		Seq:       row.Seq,
		Text:      row.Text,
		Start:     row.Start,
		End:       row.End,
		Speaker:   row.Speaker,
	}
	if len(row.Embedding) > 0 {
		if err := json.Unmarshal(row.Embedding, &c.Embedding); err != nil {
			return nil, fmt.Errorf("store: decode embedding: %w", err)
		}
	}
	return c, nil
}

func toSummaryRow(s *meeting.Summary) (*summaryRow, error) {
	topics, err := json.Marshal(s.Topics)
	if err != nil {
		return nil, fmt.Errorf("store: encode topics: %w", err)
	}
	decisions, err := json.Marshal(s.Decisions)
	if err != nil {
		return nil, fmt.Errorf("store: encode decisions: %w", err)
	}
	items, err := json.Marshal(s.ActionItems)
	if err != nil {
		return nil, fmt.Errorf("store: encode action items: %w", err)
	}
	return &summaryRow{
		MeetingID:   s.MeetingID,
		JobID:       s.JobID,
		Topics:      topics,
		Decisions:   decisions,
		ActionItems: items,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

func fromSummaryRow(row *summaryRow) (*meeting.Summary, error) {
	s := &meeting.Summary{MeetingID: row.MeetingID, JobID: row.JobID}
	for _, field := range []struct {
		raw []byte
		dst interface{}
	}{
		{row.Topics, &s.Topics},
		{row.Decisions, &s.Decisions},
		{row.ActionItems, &s.ActionItems},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return nil, fmt.Errorf("store: decode summary: %w", err)
		}
	}
	return s, nil
}
