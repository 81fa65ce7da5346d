package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/neuralnotes/neuralnotes/audio"
	"github.com/neuralnotes/neuralnotes/blob"
	"github.com/neuralnotes/neuralnotes/cache"
	"github.com/neuralnotes/neuralnotes/diarization"
	"github.com/neuralnotes/neuralnotes/embedding"
	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/index"
	"github.com/neuralnotes/neuralnotes/llm"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/meeting"
	"github.com/neuralnotes/neuralnotes/notify"
	"github.com/neuralnotes/neuralnotes/provider"
	"github.com/neuralnotes/neuralnotes/resilience"
	"github.com/neuralnotes/neuralnotes/store"
	"github.com/neuralnotes/neuralnotes/synthesis"
	"github.com/neuralnotes/neuralnotes/transcription"
)

// wavFixture builds a one-second 16 kHz mono 16-bit PCM WAV.
func wavFixture() []byte {
	return wavFixtureSeed(0)
}

// wavFixtureSeed varies the samples so fixtures get distinct checksums.
func wavFixtureSeed(seed int) []byte {
	const rate = 16000
	samples := make([]int16, rate)
	for i := range samples {
		samples[i] = int16((i + seed*37) % 4096)
	}

	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(rate))
	binary.Write(buf, binary.LittleEndian, uint32(rate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

// fakeASR returns a fixed transcript and can fail the first N calls, block
// until released, or sleep to create call overlap.
type fakeASR struct {
	mu       sync.Mutex
	calls    int
	inflight int
	peak     int
	failures int
	failWith error
	delay    time.Duration
	started  chan struct{} // closed on first call, if set
	release  chan struct{} // first call blocks until closed, if set
}

func (f *fakeASR) Name() string                     { return "fake-asr" }
func (f *fakeASR) IsAvailable(context.Context) bool { return true }

func (f *fakeASR) Transcribe(_ context.Context, _ transcription.Request) (*meeting.Transcript, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if call == 1 && f.started != nil {
		close(f.started)
	}
	if call == 1 && f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if call <= f.failures {
		return nil, f.failWith
	}
	return &meeting.Transcript{
		Segments: []meeting.TranscriptSegment{
			{Start: 0, End: 4, Text: "let us review the budget", Confidence: 0.9},
			{Start: 4, End: 8, Text: "agreed, we cut travel spend", Confidence: 0.9},
		},
		Language:        "en",
		DurationSeconds: 8,
		WordCount:       10,
	}, nil
}

func (f *fakeASR) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeASR) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

type fakeDiarizer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeDiarizer) Name() string                     { return "fake-diarizer" }
func (f *fakeDiarizer) IsAvailable(context.Context) bool { return true }

func (f *fakeDiarizer) Diarize(_ context.Context, _ diarization.Request) (*diarization.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &diarization.Result{
		Turns: []diarization.Turn{
			{Speaker: "spk_a", Start: 0, End: 4},
			{Speaker: "spk_b", Start: 4, End: 8},
		},
		NumSpeakers: 2,
	}, nil
}

func (f *fakeDiarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fixedLLM answers every extraction call with the same payload.
type fixedLLM struct {
	mu    sync.Mutex
	calls int
}

func (f *fixedLLM) Name() string                     { return "fixed-llm" }
func (f *fixedLLM) IsAvailable(context.Context) bool { return true }

func (f *fixedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return f.CompleteStructured(ctx, req, nil)
}

func (f *fixedLLM) CompleteStructured(context.Context, llm.CompletionRequest, any) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	const payload = `{"topics":["budget"],"decisions":["cut travel spend"],"action_items":[{"task":"send the budget report"}]}`
	return &llm.CompletionResponse{Content: payload, Model: "fixed"}, nil
}

func (f *fixedLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEmbedder struct{}

func (fakeEmbedder) Name() string                     { return "fake-embedder" }
func (fakeEmbedder) IsAvailable(context.Context) bool { return true }

func (fakeEmbedder) Embed(_ context.Context, req embedding.Request) (*embedding.Result, error) {
	vectors := make([][]float32, len(req.Texts))
	for i, text := range req.Texts {
		v := make([]float32, 8)
		for j, r := range text {
			v[j%8] += float32(r) / 1000
		}
		vectors[i] = v
	}
	return &embedding.Result{Vectors: vectors, Model: "fake"}, nil
}

type testEnv struct {
	orch     *Orchestrator
	store    *store.MemoryStore
	blobs    blob.Store
	vectors  *index.MemoryStore
	asr      *fakeASR
	diarizer *fakeDiarizer
	llm      *fixedLLM
	cancel   context.CancelFunc
}

func newTestEnv(t *testing.T, cfg Config, asr *fakeASR, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	log := logger.Nop()

	st := store.NewMemoryStore()
	blobs, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	vectors := index.NewMemoryStore()
	diarizer := &fakeDiarizer{}
	fixed := &fixedLLM{}

	// Fast retries keep failure tests quick.
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			BackoffFactor:  2.0,
		}
	}

	deps := Deps{
		Store:      st,
		Blobs:      blobs,
		Artifacts:  cache.NewMemoryCache(),
		Normalizer: audio.NewNormalizer(audio.Config{}, log),
		ASR:        asr,
		Diarizer:   diarizer,
		Synthesis:  synthesis.NewEngine(fixed, synthesis.Config{}, log),
		Indexer:    index.NewIndexer(fakeEmbedder{}, vectors, index.ChunkerConfig{}, log),
		Notifier:   notify.NewLogNotifier(log),
	}
	for _, m := range mutate {
		m(&deps)
	}
	orch := New(cfg, deps, log)

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(func() {
		cancel()
		orch.Wait()
	})

	return &testEnv{
		orch:     orch,
		store:    st,
		blobs:    blobs,
		vectors:  vectors,
		asr:      asr,
		diarizer: diarizer,
		llm:      fixed,
		cancel:   cancel,
	}
}

func (env *testEnv) createMeeting(t *testing.T) *meeting.Meeting {
	return env.createMeetingWithAudio(t, wavFixture())
}

func (env *testEnv) createMeetingWithAudio(t *testing.T, wav []byte) *meeting.Meeting {
	t.Helper()
	m := &meeting.Meeting{
		ID:        meeting.NewMeetingID(),
		Owner:     "tester",
		AudioRef:  "",
		Status:    meeting.StatusQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	m.AudioRef = blob.UploadKey(m.ID, ".wav")
	if err := env.blobs.Upload(context.Background(), m.AudioRef, bytes.NewReader(wav)); err != nil {
		t.Fatal(err)
	}
	if err := env.store.PutMeeting(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

func (env *testEnv) waitTerminal(t *testing.T, meetingID string) *meeting.Meeting {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-deadline:
			m, _ := env.store.GetMeeting(context.Background(), meetingID)
			t.Fatalf("meeting never reached a terminal status, last = %+v", m)
		case <-time.After(5 * time.Millisecond):
		}
		m, err := env.store.GetMeeting(context.Background(), meetingID)
		if err != nil {
			t.Fatal(err)
		}
		if m.Status.IsTerminal() {
			return m
		}
	}
}

func TestJobRunsToCompletion(t *testing.T) {
	env := newTestEnv(t, Config{Workers: 1}, &fakeASR{})
	m := env.createMeeting(t)

	jobID, err := env.orch.Submit(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := env.waitTerminal(t, m.ID)
	if got.Status != meeting.StatusCompleted {
		t.Fatalf("status = %s, error = %+v", got.Status, got.ErrorReason)
	}
	if !got.Queryable {
		t.Error("completed meeting must be queryable")
	}
	if got.Checksum == "" || got.CanonicalRef == "" {
		t.Error("normalize must record canonical ref and checksum")
	}
	for _, stage := range meeting.Stages {
		if _, ok := got.StageTimes[stage]; !ok {
			t.Errorf("missing stage time for %s", stage)
		}
	}

	job, err := env.store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Outcome != meeting.StatusCompleted || job.FinishedAt == nil {
		t.Errorf("job = %+v", job)
	}
	if job.Stage != meeting.StageIndex {
		t.Errorf("job stage = %s, want last executed stage %s", job.Stage, meeting.StageIndex)
	}

	sum, err := env.store.GetSummary(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if sum.JobID != jobID || len(sum.Topics) == 0 {
		t.Errorf("summary = %+v", sum)
	}

	n, err := env.vectors.Count(context.Background(), m.ID)
	if err != nil || n == 0 {
		t.Errorf("chunk count = %d, %v", n, err)
	}
}

func TestTransientStageFailureIsRetried(t *testing.T) {
	asr := &fakeASR{failures: 2, failWith: errors.ServiceUnavailable("whisper")}
	env := newTestEnv(t, Config{Workers: 1}, asr)
	m := env.createMeeting(t)

	jobID, err := env.orch.Submit(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := env.waitTerminal(t, m.ID)
	if got.Status != meeting.StatusCompleted {
		t.Fatalf("status = %s, error = %+v", got.Status, got.ErrorReason)
	}

	job, err := env.store.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Retries[meeting.StageTranscribe] != 2 {
		t.Errorf("transcribe retries = %d, want 2", job.Retries[meeting.StageTranscribe])
	}
	if asr.callCount() != 3 {
		t.Errorf("asr calls = %d, want 3", asr.callCount())
	}
}

func TestPermanentStageFailureFailsWithoutRetry(t *testing.T) {
	asr := &fakeASR{failures: 99, failWith: errors.MalformedResponse("whisper", nil)}
	env := newTestEnv(t, Config{Workers: 1}, asr)
	m := env.createMeeting(t)

	if _, err := env.orch.Submit(context.Background(), m.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := env.waitTerminal(t, m.ID)
	if got.Status != meeting.StatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Queryable {
		t.Error("failed meeting must not be queryable")
	}
	if got.ErrorReason == nil {
		t.Fatal("failed meeting must carry a failure reason")
	}
	if got.ErrorReason.Stage != meeting.StageTranscribe {
		t.Errorf("failure stage = %s", got.ErrorReason.Stage)
	}
	if asr.callCount() != 1 {
		t.Errorf("non-retryable error retried: %d calls", asr.callCount())
	}
}

func TestRetriesExhaustedFailsJob(t *testing.T) {
	asr := &fakeASR{failures: 99, failWith: errors.ServiceUnavailable("whisper")}
	env := newTestEnv(t, Config{Workers: 1}, asr)
	m := env.createMeeting(t)

	jobID, err := env.orch.Submit(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := env.waitTerminal(t, m.ID)
	if got.Status != meeting.StatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if asr.callCount() != 3 {
		t.Errorf("asr calls = %d, want 3 (attempt cap)", asr.callCount())
	}

	job, _ := env.store.GetJob(context.Background(), jobID)
	if job.Retries[meeting.StageTranscribe] != 2 {
		t.Errorf("retries = %d, want 2", job.Retries[meeting.StageTranscribe])
	}
}

func TestCancelStopsAtStageBoundary(t *testing.T) {
	asr := &fakeASR{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	// Parallelism 1 serializes transcribe before diarize within the level.
	env := newTestEnv(t, Config{Workers: 1, StageParallelism: 1}, asr)
	m := env.createMeeting(t)

	if _, err := env.orch.Submit(context.Background(), m.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-asr.started
	if err := env.orch.Cancel(context.Background(), m.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(asr.release)

	got := env.waitTerminal(t, m.ID)
	if got.Status != meeting.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Queryable {
		t.Error("canceled meeting must not be queryable")
	}

	// The running transcribe stage finished and its artifact is retained.
	art, err := env.store.FindArtifact(context.Background(), m.ID, meeting.StageTranscribe, got.Checksum)
	if err != nil || art == nil {
		t.Errorf("transcribe artifact = %v, %v", art, err)
	}
	// Diarize was queued behind transcribe and never started.
	if env.diarizer.callCount() != 0 {
		t.Errorf("diarizer ran %d times after cancellation", env.diarizer.callCount())
	}
	if merged, _ := env.store.FindArtifact(context.Background(), m.ID, meeting.StageMerge, got.Checksum); merged != nil {
		t.Error("merge must not run after cancellation")
	}
}

func TestCapabilityCeilingBoundsConcurrentCalls(t *testing.T) {
	asr := &fakeASR{delay: 25 * time.Millisecond}
	limited := transcription.WithResilience(asr, provider.ResilienceConfig{
		Bulkhead: &resilience.BulkheadConfig{Name: "asr", MaxConcurrent: 2, MaxWait: 10 * time.Second},
	})
	env := newTestEnv(t, Config{Workers: 6}, asr, func(d *Deps) { d.ASR = limited })

	// Distinct audio per meeting keeps the idempotency keys apart, so
	// every job must actually call the capability.
	ids := make([]string, 6)
	for i := range ids {
		m := env.createMeetingWithAudio(t, wavFixtureSeed(i+1))
		if _, err := env.orch.Submit(context.Background(), m.ID); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		ids[i] = m.ID
	}

	for _, id := range ids {
		got := env.waitTerminal(t, id)
		if got.Status != meeting.StatusCompleted {
			t.Fatalf("meeting %s: status = %s, error = %+v", id, got.Status, got.ErrorReason)
		}
	}

	if asr.callCount() != 6 {
		t.Errorf("asr calls = %d, want 6", asr.callCount())
	}
	if peak := asr.peakInFlight(); peak > 2 {
		t.Errorf("peak concurrent asr calls = %d, ceiling is 2", peak)
	}
}

func TestCancelWithoutActiveJobConflicts(t *testing.T) {
	env := newTestEnv(t, Config{Workers: 1}, &fakeASR{})
	m := env.createMeeting(t)

	err := env.orch.Cancel(context.Background(), m.ID)
	ae, ok := errors.AsAppError(err)
	if !ok || ae.Code != errors.ErrCodeConflict {
		t.Fatalf("err = %v", err)
	}
}

func TestSecondSubmitWhileActiveIsRejected(t *testing.T) {
	asr := &fakeASR{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	env := newTestEnv(t, Config{Workers: 1}, asr)
	m := env.createMeeting(t)

	if _, err := env.orch.Submit(context.Background(), m.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-asr.started

	_, err := env.orch.Submit(context.Background(), m.ID)
	ae, ok := errors.AsAppError(err)
	if !ok || ae.Code != errors.ErrCodeAlreadyActive {
		t.Fatalf("second submit err = %v", err)
	}

	close(asr.release)
	env.waitTerminal(t, m.ID)
}

func TestResubmitReusesExpensiveStageArtifacts(t *testing.T) {
	env := newTestEnv(t, Config{Workers: 1}, &fakeASR{})
	m := env.createMeeting(t)

	if _, err := env.orch.Submit(context.Background(), m.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	env.waitTerminal(t, m.ID)

	asrCalls := env.asr.callCount()
	diarizeCalls := env.diarizer.callCount()
	llmCalls := env.llm.callCount()

	jobID2, err := env.orch.Submit(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	got := env.waitTerminal(t, m.ID)
	if got.Status != meeting.StatusCompleted {
		t.Fatalf("status = %s, error = %+v", got.Status, got.ErrorReason)
	}

	// Identical audio means identical checksum, so the external stages are
	// restored from artifacts instead of recomputed.
	if env.asr.callCount() != asrCalls {
		t.Errorf("asr recomputed: %d -> %d", asrCalls, env.asr.callCount())
	}
	if env.diarizer.callCount() != diarizeCalls {
		t.Errorf("diarizer recomputed: %d -> %d", diarizeCalls, env.diarizer.callCount())
	}
	if env.llm.callCount() != llmCalls {
		t.Errorf("llm recomputed: %d -> %d", llmCalls, env.llm.callCount())
	}

	// The restored summary is re-tagged with the new job.
	sum, err := env.store.GetSummary(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.JobID != jobID2 {
		t.Errorf("summary job = %s, want %s", sum.JobID, jobID2)
	}
}
