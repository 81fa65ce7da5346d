package store

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/index"
	"github.com/neuralnotes/neuralnotes/meeting"
)

// GormStore is the SQLite-backed Store. It also implements
// index.VectorStore so the chunk set lives in the same database and its
// replacement is a single transaction.
type GormStore struct {
	db *DB
}

// NewGormStore migrates the schema and returns the store.
func NewGormStore(db *DB) (*GormStore, error) {
	if err := db.AutoMigrate(&meetingRow{}, &jobRow{}, &artifactRow{}, &chunkRow{}, &summaryRow{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// PutMeeting inserts or updates a meeting record.
func (s *GormStore) PutMeeting(ctx context.Context, m *meeting.Meeting) error {
	row, err := toMeetingRow(m)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row)
	if res.Error != nil {
		return errors.DatabaseError(res.Error)
	}
	return nil
}

// GetMeeting returns the meeting or NotFound.
func (s *GormStore) GetMeeting(ctx context.Context, id string) (*meeting.Meeting, error) {
	var row meetingRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("meeting", id)
		}
		return nil, errors.DatabaseError(err)
	}
	return fromMeetingRow(&row)
}

// ListMeetings returns all meetings, newest first.
func (s *GormStore) ListMeetings(ctx context.Context) ([]meeting.Meeting, error) {
	var rows []meetingRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, errors.DatabaseError(err)
	}
	out := make([]meeting.Meeting, 0, len(rows))
	for i := range rows {
		m, err := fromMeetingRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

// CreateJob inserts a job. The active-job check and the insert share one
// transaction so concurrent submits cannot both succeed.
func (s *GormStore) CreateJob(ctx context.Context, job *meeting.Job) error {
	row, err := toJobRow(job)
	if err != nil {
		return err
	}
	return s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&jobRow{}).
			Where("meeting_id = ? AND outcome = ''", job.MeetingID).
			Count(&active).Error; err != nil {
			return errors.DatabaseError(err)
		}
		if active > 0 {
			return errors.AlreadyActive(job.MeetingID)
		}
		if err := tx.Create(row).Error; err != nil {
			return errors.DatabaseError(err)
		}
		return nil
	})
}

// PutJob updates an existing job record.
func (s *GormStore) PutJob(ctx context.Context, job *meeting.Job) error {
	row, err := toJobRow(job)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", job.ID).
		Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return errors.DatabaseError(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NotFound("job", job.ID)
	}
	return nil
}

// GetJob returns the job or NotFound.
func (s *GormStore) GetJob(ctx context.Context, id string) (*meeting.Job, error) {
	var row jobRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("job", id)
		}
		return nil, errors.DatabaseError(err)
	}
	return fromJobRow(&row)
}

// ActiveJob returns the meeting's active job, or nil when none exists.
func (s *GormStore) ActiveJob(ctx context.Context, meetingID string) (*meeting.Job, error) {
	var row jobRow
	err := s.db.WithContext(ctx).
		Where("meeting_id = ? AND outcome = ''", meetingID).
		First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.DatabaseError(err)
	}
	return fromJobRow(&row)
}

// AppendArtifact records a stage output.
func (s *GormStore) AppendArtifact(ctx context.Context, a *Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	row := artifactRow{
		MeetingID:     a.MeetingID,
		JobID:         a.JobID,
		Stage:         string(a.Stage),
		InputChecksum: a.InputChecksum,
		Payload:       a.Payload,
		CreatedAt:     a.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.DatabaseError(err)
	}
	a.ID = row.ID
	return nil
}

// FindArtifact returns the newest matching artifact, or nil when none exists.
func (s *GormStore) FindArtifact(ctx context.Context, meetingID string, stage meeting.Stage, inputChecksum string) (*Artifact, error) {
	var row artifactRow
	err := s.db.WithContext(ctx).
		Where("meeting_id = ? AND stage = ? AND input_checksum = ?", meetingID, string(stage), inputChecksum).
		Order("id DESC").
		First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.DatabaseError(err)
	}
	return artifactFromRow(&row), nil
}

// ArtifactsForJob returns all artifacts recorded by one job, oldest first.
func (s *GormStore) ArtifactsForJob(ctx context.Context, jobID string) ([]Artifact, error) {
	var rows []artifactRow
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errors.DatabaseError(err)
	}
	out := make([]Artifact, 0, len(rows))
	for i := range rows {
		out = append(out, *artifactFromRow(&rows[i]))
	}
	return out, nil
}

func artifactFromRow(row *artifactRow) *Artifact {
	return &Artifact{
		ID:            row.ID,
		MeetingID:     row.MeetingID,
		JobID:         row.JobID,
		Stage:         meeting.Stage(row.Stage),
		InputChecksum: row.InputChecksum,
		Payload:       row.Payload,
		CreatedAt:     row.CreatedAt,
	}
}

// PutSummary inserts or replaces the meeting's summary.
func (s *GormStore) PutSummary(ctx context.Context, sum *meeting.Summary) error {
	row, err := toSummaryRow(sum)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row)
	if res.Error != nil {
		return errors.DatabaseError(res.Error)
	}
	return nil
}

// GetSummary returns the meeting's summary or NotFound.
func (s *GormStore) GetSummary(ctx context.Context, meetingID string) (*meeting.Summary, error) {
	var row summaryRow
	if err := s.db.WithContext(ctx).First(&row, "meeting_id = ?", meetingID).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("summary", meetingID)
		}
		return nil, errors.DatabaseError(err)
	}
	return fromSummaryRow(&row)
}

// ReplaceChunkSet deletes the meeting's previous chunk set and inserts the
// new one in a single transaction, so readers never see a mix of two sets.
func (s *GormStore) ReplaceChunkSet(ctx context.Context, meetingID string, chunks []meeting.Chunk) error {
	rows := make([]chunkRow, 0, len(chunks))
	for i := range chunks {
		row, err := toChunkRow(&chunks[i])
		if err != nil {
			return err
		}
		rows = append(rows, *row)
	}
	return s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("meeting_id = ?", meetingID).Delete(&chunkRow{}).Error; err != nil {
			return errors.DatabaseError(err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return errors.DatabaseError(err)
		}
		return nil
	})
}

// Search loads the meeting's chunks and ranks them by cosine similarity.
// Chunk sets are small enough (hundreds per meeting) that scanning in
// process beats pushing vector math into SQLite.
func (s *GormStore) Search(ctx context.Context, meetingID string, vector []float32, k int) ([]index.Scored, error) {
	var rows []chunkRow
	if err := s.db.WithContext(ctx).Where("meeting_id = ?", meetingID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, errors.DatabaseError(err)
	}

	scored := make([]index.Scored, 0, len(rows))
	for i := range rows {
		c, err := fromChunkRow(&rows[i])
		if err != nil {
			return nil, err
		}
		scored = append(scored, index.Scored{Chunk: *c, Score: index.CosineSimilarity(vector, c.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Count returns the number of chunks stored for a meeting.
func (s *GormStore) Count(ctx context.Context, meetingID string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&chunkRow{}).Where("meeting_id = ?", meetingID).Count(&n).Error; err != nil {
		return 0, errors.DatabaseError(err)
	}
	return int(n), nil
}

var (
	_ Store             = (*GormStore)(nil)
	_ index.VectorStore = (*GormStore)(nil)
)
