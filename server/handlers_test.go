package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neuralnotes/neuralnotes/audio"
	"github.com/neuralnotes/neuralnotes/blob"
	"github.com/neuralnotes/neuralnotes/cache"
	"github.com/neuralnotes/neuralnotes/diarization"
	"github.com/neuralnotes/neuralnotes/embedding"
	"github.com/neuralnotes/neuralnotes/index"
	"github.com/neuralnotes/neuralnotes/llm"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/meeting"
	"github.com/neuralnotes/neuralnotes/notify"
	"github.com/neuralnotes/neuralnotes/pipeline"
	"github.com/neuralnotes/neuralnotes/provider"
	"github.com/neuralnotes/neuralnotes/query"
	"github.com/neuralnotes/neuralnotes/store"
	"github.com/neuralnotes/neuralnotes/synthesis"
	"github.com/neuralnotes/neuralnotes/transcription"
)

type staticASR struct{}

func (staticASR) Name() string                     { return "static-asr" }
func (staticASR) IsAvailable(context.Context) bool { return true }
func (staticASR) Transcribe(context.Context, transcription.Request) (*meeting.Transcript, error) {
	return &meeting.Transcript{Segments: []meeting.TranscriptSegment{
		{Start: 0, End: 2, Text: "hello"},
	}}, nil
}

type staticDiarizer struct{}

func (staticDiarizer) Name() string                     { return "static-diarizer" }
func (staticDiarizer) IsAvailable(context.Context) bool { return true }
func (staticDiarizer) Diarize(context.Context, diarization.Request) (*diarization.Result, error) {
	return &diarization.Result{Turns: []diarization.Turn{{Speaker: "spk_a", Start: 0, End: 2}}}, nil
}

type staticLLM struct{}

func (staticLLM) Name() string                     { return "static-llm" }
func (staticLLM) IsAvailable(context.Context) bool { return true }
func (staticLLM) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: "The team decided to cut travel spend."}, nil
}
func (staticLLM) CompleteStructured(context.Context, llm.CompletionRequest, any) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: `{"topics":["budget"]}`}, nil
}

// constEmbedder maps every text to the same unit vector, so any question
// matches any chunk with similarity 1.
type constEmbedder struct{}

func (constEmbedder) Name() string                     { return "const-embedder" }
func (constEmbedder) IsAvailable(context.Context) bool { return true }
func (constEmbedder) Embed(_ context.Context, req embedding.Request) (*embedding.Result, error) {
	vectors := make([][]float32, len(req.Texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0, 0, 0}
	}
	return &embedding.Result{Vectors: vectors}, nil
}

type testAPI struct {
	engine  *gin.Engine
	store   *store.MemoryStore
	vectors *index.MemoryStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := logger.Nop()

	st := store.NewMemoryStore()
	blobs, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	vectors := index.NewMemoryStore()
	normalizer := audio.NewNormalizer(audio.Config{}, log)

	// The orchestrator is created but not started: jobs queue up and
	// handler behavior is observable without running the pipeline.
	orch := pipeline.New(pipeline.Config{}, pipeline.Deps{
		Store:      st,
		Blobs:      blobs,
		Artifacts:  cache.NewMemoryCache(),
		Normalizer: normalizer,
		ASR:        staticASR{},
		Diarizer:   staticDiarizer{},
		Synthesis:  synthesis.NewEngine(staticLLM{}, synthesis.Config{}, log),
		Indexer:    index.NewIndexer(constEmbedder{}, vectors, index.ChunkerConfig{}, log),
		Notifier:   notify.NewLogNotifier(log),
	}, log)

	queries := query.NewEngine(constEmbedder{}, staticLLM{}, vectors, query.Config{}, log)

	api := NewAPI(APIDeps{
		Store:      st,
		Blobs:      blobs,
		Normalizer: normalizer,
		Orch:       orch,
		Queries:    queries,
		Providers: map[string]provider.Provider{
			"asr": staticASR{},
			"llm": staticLLM{},
		},
	}, log)

	srv := New(Config{}, log)
	api.Register(srv.Engine())

	return &testAPI{engine: srv.Engine(), store: st, vectors: vectors}
}

func (ta *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ta.engine.ServeHTTP(w, req)
	return w
}

func multipartAudio(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return resp.Error
}

func seedQueryableMeeting(t *testing.T, ta *testAPI) *meeting.Meeting {
	t.Helper()
	m := &meeting.Meeting{
		ID:        meeting.NewMeetingID(),
		Status:    meeting.StatusCompleted,
		Queryable: true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := ta.store.PutMeeting(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	chunks := []meeting.Chunk{
		{MeetingID: m.ID, Seq: 0, Text: "we discussed the budget", Start: 0, End: 10, Embedding: []float32{1, 0, 0, 0}},
		{MeetingID: m.ID, Seq: 1, Text: "travel spend gets cut", Start: 10, End: 20, Embedding: []float32{1, 0, 0, 0}},
	}
	if err := ta.vectors.ReplaceChunkSet(context.Background(), m.ID, chunks); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestUploadCreatesMeetingAndJob(t *testing.T) {
	ta := newTestAPI(t)
	body, contentType := multipartAudio(t, "standup.wav", []byte("RIFF fake payload"))

	req := httptest.NewRequest(http.MethodPost, "/api/meetings", body)
	req.Header.Set("Content-Type", contentType)
	w := ta.do(req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data uploadResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.MeetingID == "" || resp.Data.JobID == "" {
		t.Fatalf("response = %+v", resp.Data)
	}

	m, err := ta.store.GetMeeting(context.Background(), resp.Data.MeetingID)
	if err != nil {
		t.Fatal(err)
	}
	if m.AudioRef == "" {
		t.Error("uploaded meeting must reference its audio")
	}
	job, err := ta.store.ActiveJob(context.Background(), m.ID)
	if err != nil || job == nil {
		t.Fatalf("active job = %v, %v", job, err)
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	ta := newTestAPI(t)
	body, contentType := multipartAudio(t, "notes.txt", []byte("not audio"))

	req := httptest.NewRequest(http.MethodPost, "/api/meetings", body)
	req.Header.Set("Content-Type", contentType)
	w := ta.do(req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if e := decodeError(t, w); e.Code != "INVALID_FORMAT" {
		t.Errorf("code = %s", e.Code)
	}
}

func TestUploadMissingFile(t *testing.T) {
	ta := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/meetings", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w := ta.do(req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if e := decodeError(t, w); e.Code != "MISSING_FIELD" {
		t.Errorf("code = %s", e.Code)
	}
}

func TestGetMeetingValidation(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(httptest.NewRequest(http.MethodGet, "/api/meetings/not-an-id", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d", w.Code)
	}

	w = ta.do(httptest.NewRequest(http.MethodGet, "/api/meetings/mtg_00000000", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", w.Code)
	}
}

func TestGetMeetingProjection(t *testing.T) {
	ta := newTestAPI(t)
	m := seedQueryableMeeting(t, ta)

	w := ta.do(httptest.NewRequest(http.MethodGet, "/api/meetings/"+m.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Data meetingStatus `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Status != meeting.StatusCompleted || !resp.Data.Queryable {
		t.Errorf("projection = %+v", resp.Data)
	}
}

func TestCancelWithoutActiveJob(t *testing.T) {
	ta := newTestAPI(t)
	m := seedQueryableMeeting(t, ta)

	w := ta.do(httptest.NewRequest(http.MethodDelete, "/api/meetings/"+m.ID+"/jobs", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	if e := decodeError(t, w); e.Code != "CONFLICT" {
		t.Errorf("code = %s", e.Code)
	}
}

func TestAskRequiresQueryableMeeting(t *testing.T) {
	ta := newTestAPI(t)
	m := &meeting.Meeting{
		ID:        meeting.NewMeetingID(),
		Status:    meeting.StatusTranscribing,
		CreatedAt: time.Now().UTC(),
	}
	if err := ta.store.PutMeeting(context.Background(), m); err != nil {
		t.Fatal(err)
	}

	body := strings.NewReader(`{"question":"what was decided?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/meetings/"+m.ID+"/ask", body)
	req.Header.Set("Content-Type", "application/json")
	w := ta.do(req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAskAnswersQueryableMeeting(t *testing.T) {
	ta := newTestAPI(t)
	m := seedQueryableMeeting(t, ta)

	body := strings.NewReader(`{"question":"what happens to travel spend?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/meetings/"+m.ID+"/ask", body)
	req.Header.Set("Content-Type", "application/json")
	w := ta.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data meeting.QueryResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Data.Answerable || resp.Data.Answer == "" {
		t.Errorf("result = %+v", resp.Data)
	}
	if len(resp.Data.Citations) == 0 {
		t.Error("answer must carry citations")
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	ta := newTestAPI(t)
	m := seedQueryableMeeting(t, ta)

	req := httptest.NewRequest(http.MethodPost, "/api/meetings/"+m.ID+"/ask", strings.NewReader(`{"question":""}`))
	req.Header.Set("Content-Type", "application/json")
	w := ta.do(req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	ta := newTestAPI(t)
	m := seedQueryableMeeting(t, ta)

	w := ta.do(httptest.NewRequest(http.MethodGet, "/api/meetings/"+m.ID+"/summary", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing summary status = %d", w.Code)
	}

	sum := &meeting.Summary{MeetingID: m.ID, JobID: "job-1", Topics: []string{"budget"}}
	if err := ta.store.PutSummary(context.Background(), sum); err != nil {
		t.Fatal(err)
	}

	w = ta.do(httptest.NewRequest(http.MethodGet, "/api/meetings/"+m.ID+"/summary", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Data meeting.Summary `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data.Topics) != 1 {
		t.Errorf("summary = %+v", resp.Data)
	}
}

func TestListMeetings(t *testing.T) {
	ta := newTestAPI(t)
	seedQueryableMeeting(t, ta)
	seedQueryableMeeting(t, ta)

	w := ta.do(httptest.NewRequest(http.MethodGet, "/api/meetings", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Data []meetingStatus `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("meetings = %d, want 2", len(resp.Data))
	}
}

func TestHealthEndpoint(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || len(resp.Providers) != 2 {
		t.Errorf("health = %+v", resp)
	}
}

func TestVersionEndpoint(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "version") {
		t.Errorf("body = %s", w.Body.String())
	}
}
