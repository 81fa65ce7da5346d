package server

import (
	"bytes"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neuralnotes/neuralnotes/audio"
	"github.com/neuralnotes/neuralnotes/blob"
	apperrors "github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/meeting"
	"github.com/neuralnotes/neuralnotes/pipeline"
	"github.com/neuralnotes/neuralnotes/provider"
	"github.com/neuralnotes/neuralnotes/query"
	"github.com/neuralnotes/neuralnotes/store"
	"github.com/neuralnotes/neuralnotes/validation"
	"github.com/neuralnotes/neuralnotes/version"
)

// API holds the route handlers and their collaborators.
type API struct {
	store      store.Store
	blobs      blob.Store
	normalizer *audio.Normalizer
	orch       *pipeline.Orchestrator
	queries    *query.Engine
	providers  map[string]provider.Provider
	log        *logger.Logger
}

// APIDeps bundles the API's collaborators.
type APIDeps struct {
	Store      store.Store
	Blobs      blob.Store
	Normalizer *audio.Normalizer
	Orch       *pipeline.Orchestrator
	Queries    *query.Engine
	// Providers are the external capabilities probed by /health.
	Providers map[string]provider.Provider
}

// NewAPI creates the route handler set.
func NewAPI(deps APIDeps, log *logger.Logger) *API {
	return &API{
		store:      deps.Store,
		blobs:      deps.Blobs,
		normalizer: deps.Normalizer,
		orch:       deps.Orch,
		queries:    deps.Queries,
		providers:  deps.Providers,
		log:        log.WithComponent("api"),
	}
}

// Register mounts all routes on the engine.
func (a *API) Register(engine *gin.Engine) {
	engine.GET("/health", a.health)
	engine.GET("/version", a.version)

	api := engine.Group("/api")
	{
		api.POST("/meetings", a.uploadMeeting)
		api.GET("/meetings", a.listMeetings)
		api.GET("/meetings/:id", a.getMeeting)
		api.POST("/meetings/:id/jobs", a.submitJob)
		api.DELETE("/meetings/:id/jobs", a.cancelJob)
		api.GET("/meetings/:id/summary", a.getSummary)
		api.POST("/meetings/:id/ask", a.ask)
	}
}

// uploadResponse is returned by POST /api/meetings.
type uploadResponse struct {
	MeetingID string `json:"meeting_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
}

// uploadMeeting ingests a recording from a multipart form ("audio" file,
// optional "owner" field) and submits the processing job.
func (a *API) uploadMeeting(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		RespondWithError(c, apperrors.MissingField("audio"))
		return
	}

	filename := filepath.Base(file.Filename)
	if err := a.normalizer.ValidateUpload(filename, file.Size); err != nil {
		RespondWithError(c, err)
		return
	}

	src, err := file.Open()
	if err != nil {
		RespondWithError(c, apperrors.Internal(err))
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		RespondWithError(c, apperrors.Internal(err))
		return
	}

	m := &meeting.Meeting{
		ID:        meeting.NewMeetingID(),
		Owner:     strings.TrimSpace(c.PostForm("owner")),
		Status:    meeting.StatusQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	m.AudioRef = blob.UploadKey(m.ID, strings.ToLower(filepath.Ext(filename)))

	ctx := c.Request.Context()
	if err := a.blobs.Upload(ctx, m.AudioRef, bytes.NewReader(data)); err != nil {
		RespondWithError(c, apperrors.Internal(err))
		return
	}
	if err := a.store.PutMeeting(ctx, m); err != nil {
		RespondWithError(c, err)
		return
	}

	jobID, err := a.orch.Submit(ctx, m.ID)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	a.log.Info("meeting uploaded", logger.Fields(
		logger.FieldMeetingID, m.ID,
		logger.FieldJobID, jobID,
		"bytes", len(data),
	))
	RespondCreated(c, uploadResponse{MeetingID: m.ID, JobID: jobID, Status: string(meeting.StatusQueued)})
}

// submitJob starts a reprocessing job for an existing meeting.
func (a *API) submitJob(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateMeetingID(id); err != nil {
		RespondWithError(c, err)
		return
	}

	jobID, err := a.orch.Submit(c.Request.Context(), id)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondAccepted(c, gin.H{"meeting_id": id, "job_id": jobID})
}

// cancelJob requests cancellation of the meeting's active job.
func (a *API) cancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateMeetingID(id); err != nil {
		RespondWithError(c, err)
		return
	}

	if err := a.orch.Cancel(c.Request.Context(), id); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondAccepted(c, gin.H{"meeting_id": id, "status": "cancelling"})
}

// meetingStatus is the status projection returned by GET /api/meetings/:id.
type meetingStatus struct {
	ID          string                      `json:"id"`
	Owner       string                      `json:"owner,omitempty"`
	Status      meeting.Status              `json:"status"`
	Queryable   bool                        `json:"queryable"`
	StageTimes  map[meeting.Stage]time.Time `json:"stage_times,omitempty"`
	ErrorReason *meeting.FailureReason      `json:"error_reason,omitempty"`
	Retries     map[meeting.Stage]int       `json:"retries,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

func (a *API) getMeeting(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateMeetingID(id); err != nil {
		RespondWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	m, err := a.store.GetMeeting(ctx, id)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	status := meetingStatus{
		ID:          m.ID,
		Owner:       m.Owner,
		Status:      m.Status,
		Queryable:   m.Queryable,
		StageTimes:  m.StageTimes,
		ErrorReason: m.ErrorReason,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if job, err := a.store.ActiveJob(ctx, id); err == nil && job != nil {
		status.Retries = job.Retries
	}
	RespondOK(c, status)
}

func (a *API) listMeetings(c *gin.Context) {
	meetings, err := a.store.ListMeetings(c.Request.Context())
	if err != nil {
		RespondWithError(c, err)
		return
	}

	statuses := make([]meetingStatus, len(meetings))
	for i, m := range meetings {
		statuses[i] = meetingStatus{
			ID:          m.ID,
			Owner:       m.Owner,
			Status:      m.Status,
			Queryable:   m.Queryable,
			ErrorReason: m.ErrorReason,
			CreatedAt:   m.CreatedAt,
			UpdatedAt:   m.UpdatedAt,
		}
	}
	RespondOK(c, statuses)
}

func (a *API) getSummary(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateMeetingID(id); err != nil {
		RespondWithError(c, err)
		return
	}

	sum, err := a.store.GetSummary(c.Request.Context(), id)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, sum)
}

// askRequest is the body of POST /api/meetings/:id/ask.
type askRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
}

func (a *API) ask(c *gin.Context) {
	id := c.Param("id")
	if err := validation.ValidateMeetingID(id); err != nil {
		RespondWithError(c, err)
		return
	}

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, apperrors.InvalidInput("body", "malformed JSON body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		RespondWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	m, err := a.store.GetMeeting(ctx, id)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	if !m.Queryable {
		RespondWithError(c, apperrors.Conflict("meeting is not queryable").
			WithDetail("status", string(m.Status)))
		return
	}

	result, err := a.queries.Ask(ctx, id, req.Question)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, result)
}

// healthResponse aggregates provider health under an overall status.
type healthResponse struct {
	Status    string                   `json:"status"`
	Providers map[string]providerState `json:"providers,omitempty"`
}

type providerState struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (a *API) health(c *gin.Context) {
	report := provider.CheckAll(c.Request.Context(), a.providers)

	resp := healthResponse{Status: provider.StatusHealthy.String()}
	if len(report) > 0 {
		resp.Providers = make(map[string]providerState, len(report))
	}
	worst := provider.StatusHealthy
	for name, hs := range report {
		resp.Providers[name] = providerState{Status: hs.Status.String(), Message: hs.Message}
		if hs.Status > worst {
			worst = hs.Status
		}
	}
	resp.Status = worst.String()

	code := http.StatusOK
	if worst == provider.StatusUnavailable {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (a *API) version(c *gin.Context) {
	RespondOK(c, version.Get())
}
