// Package pipeline orchestrates a meeting's processing job through the
// stage graph: normalize, transcribe and diarize concurrently, merge,
// synthesize, index. The orchestrator is the single writer of meeting
// status and the sole retry decision point: stages return classified
// errors and only transient ones are retried.
package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/neuralnotes/neuralnotes/audio"
	"github.com/neuralnotes/neuralnotes/blob"
	"github.com/neuralnotes/neuralnotes/cache"
	"github.com/neuralnotes/neuralnotes/dag"
	"github.com/neuralnotes/neuralnotes/diarization"
	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/index"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/meeting"
	"github.com/neuralnotes/neuralnotes/notify"
	"github.com/neuralnotes/neuralnotes/observability"
	"github.com/neuralnotes/neuralnotes/store"
	"github.com/neuralnotes/neuralnotes/synthesis"
	"github.com/neuralnotes/neuralnotes/transcription"
)

// Orchestrator runs jobs through the stage graph on a bounded worker pool.
type Orchestrator struct {
	cfg Config

	store      store.Store
	blobs      blob.Store
	artifacts  cache.ArtifactCache
	normalizer *audio.Normalizer
	asr        transcription.Provider
	diarizer   diarization.Provider
	synth      *synthesis.Engine
	indexer    *index.Indexer
	notifier   notify.Notifier
	metrics    *observability.PipelineMetrics
	log        *logger.Logger

	queue chan string

	mu      sync.Mutex
	active  map[string]context.CancelFunc // meeting id -> job cancel
	started bool
	wg      sync.WaitGroup
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Store      store.Store
	Blobs      blob.Store
	Artifacts  cache.ArtifactCache
	Normalizer *audio.Normalizer
	ASR        transcription.Provider
	Diarizer   diarization.Provider
	Synthesis  *synthesis.Engine
	Indexer    *index.Indexer
	Notifier   notify.Notifier
	Metrics    *observability.PipelineMetrics
}

// New creates an Orchestrator. Call Start before submitting jobs.
func New(cfg Config, deps Deps, log *logger.Logger) *Orchestrator {
	cfg.ApplyDefaults()
	return &Orchestrator{
		cfg:        cfg,
		store:      deps.Store,
		blobs:      deps.Blobs,
		artifacts:  deps.Artifacts,
		normalizer: deps.Normalizer,
		asr:        deps.ASR,
		diarizer:   deps.Diarizer,
		synth:      deps.Synthesis,
		indexer:    deps.Indexer,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		log:        log.WithComponent("pipeline"),
		queue:      make(chan string, cfg.QueueSize),
		active:     make(map[string]context.CancelFunc),
	}
}

// Start launches the worker pool. Workers drain until ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx)
	}
	o.log.Info("orchestrator started", logger.Fields(
		"workers", o.cfg.Workers,
		"stage_parallelism", o.cfg.StageParallelism,
	))
}

// Wait blocks until all workers have exited after Start's context ends.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-o.queue:
			o.runJob(jobID)
		}
	}
}

// Submit creates and enqueues a processing job for the meeting. The
// single-active-job rule is enforced atomically by the store; a second
// submit while a job is active fails with AlreadyActive.
func (o *Orchestrator) Submit(ctx context.Context, meetingID string) (string, error) {
	m, err := o.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return "", err
	}
	if m.AudioRef == "" {
		return "", errors.Consistency("submit: meeting has no audio reference")
	}

	job := &meeting.Job{
		ID:        meeting.NewJobID(),
		MeetingID: meetingID,
		Retries:   make(map[meeting.Stage]int),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return "", err
	}

	m.Status = meeting.StatusQueued
	m.Queryable = false
	m.ErrorReason = nil
	m.UpdatedAt = time.Now().UTC()
	if err := o.store.PutMeeting(ctx, m); err != nil {
		return "", err
	}

	select {
	case o.queue <- job.ID:
	default:
		now := time.Now().UTC()
		job.Outcome = meeting.StatusFailed
		job.FinishedAt = &now
		_ = o.store.PutJob(ctx, job)
		return "", errors.ServiceUnavailable("pipeline").WithDetail("reason", "job queue full")
	}

	o.log.Info("job submitted", logger.Fields(
		logger.FieldMeetingID, meetingID,
		logger.FieldJobID, job.ID,
	))
	return job.ID, nil
}

// Cancel requests cancellation of the meeting's active job. The running
// stage finishes; the job stops at the next stage boundary and already
// recorded artifacts are retained. Canceling a meeting with no active job
// is a conflict.
func (o *Orchestrator) Cancel(ctx context.Context, meetingID string) error {
	job, err := o.store.ActiveJob(ctx, meetingID)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.Conflict("no active job for this meeting")
	}

	o.mu.Lock()
	cancel, running := o.active[meetingID]
	o.mu.Unlock()

	if running {
		cancel()
		o.log.Info("job cancellation requested", logger.Fields(
			logger.FieldMeetingID, meetingID,
			logger.FieldJobID, job.ID,
		))
		return nil
	}

	// Still queued: finish it directly, no worker will pick it up once
	// the outcome is set.
	o.finishQueued(ctx, job)
	return nil
}

func (o *Orchestrator) finishQueued(ctx context.Context, job *meeting.Job) {
	now := time.Now().UTC()
	job.Outcome = meeting.StatusCancelled
	job.FinishedAt = &now
	if err := o.store.PutJob(ctx, job); err != nil {
		o.log.Error("persist canceled job", logger.ErrorFields("put_job", err))
	}
	if m, err := o.store.GetMeeting(ctx, job.MeetingID); err == nil {
		m.Status = meeting.StatusCancelled
		m.UpdatedAt = now
		if err := o.store.PutMeeting(ctx, m); err != nil {
			o.log.Error("persist canceled meeting", logger.ErrorFields("put_meeting", err))
		}
	}
}

// runJob executes one job through the stage graph and records the outcome.
func (o *Orchestrator) runJob(jobID string) {
	ctx := context.Background()

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		o.log.Error("load job", logger.ErrorFields("get_job", err))
		return
	}
	if !job.Active() {
		// Canceled while queued.
		return
	}
	m, err := o.store.GetMeeting(ctx, job.MeetingID)
	if err != nil {
		o.log.Error("load meeting", logger.ErrorFields("get_meeting", err))
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.active[m.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, m.ID)
		o.mu.Unlock()
	}()

	run := &jobRun{o: o, m: m, job: job}
	o.metrics.JobStarted(ctx)

	state := dag.NewState()
	engine := &dag.Engine{MaxParallel: o.cfg.StageParallelism}
	result, execErr := engine.Execute(runCtx, o.buildGraph(run), state, nil)

	switch {
	case execErr == nil:
		o.finishJob(ctx, run, meeting.StatusCompleted, nil)
		o.notifyCompletion(ctx, run, state)
	case stderrors.Is(execErr, context.Canceled):
		o.finishJob(ctx, run, meeting.StatusCancelled, nil)
	default:
		reason := failureReason(result, execErr)
		o.finishJob(ctx, run, meeting.StatusFailed, reason)
	}
}

func failureReason(result *dag.Result, err error) *meeting.FailureReason {
	reason := &meeting.FailureReason{
		Stage:   meeting.Stage("unknown"),
		Code:    string(errors.ErrCodeInternal),
		Message: err.Error(),
	}
	if result != nil && result.FailedNode != "" {
		reason.Stage = meeting.Stage(result.FailedNode)
	}
	if ae, ok := errors.AsAppError(err); ok {
		reason.Code = string(ae.Code)
		reason.Message = ae.Message
	}
	return reason
}

func (o *Orchestrator) finishJob(ctx context.Context, run *jobRun, outcome meeting.Status, reason *meeting.FailureReason) {
	now := time.Now().UTC()

	run.mu.Lock()
	run.job.Outcome = outcome
	run.job.FinishedAt = &now
	run.m.Status = outcome
	run.m.ErrorReason = reason
	run.m.Queryable = outcome == meeting.StatusCompleted
	run.m.UpdatedAt = now
	run.mu.Unlock()

	if err := o.store.PutJob(ctx, run.job); err != nil {
		o.log.Error("persist job outcome", logger.ErrorFields("put_job", err))
	}
	if err := o.store.PutMeeting(ctx, run.m); err != nil {
		o.log.Error("persist meeting outcome", logger.ErrorFields("put_meeting", err))
	}

	o.metrics.JobFinished(ctx, string(outcome))
	fields := logger.Fields(
		logger.FieldMeetingID, run.m.ID,
		logger.FieldJobID, run.job.ID,
		logger.FieldStatus, string(outcome),
	)
	if reason != nil {
		fields[logger.FieldStage] = string(reason.Stage)
		fields["code"] = reason.Code
		o.log.Error("job failed", fields)
	} else {
		o.log.Info("job finished", fields)
	}
}

func (o *Orchestrator) notifyCompletion(ctx context.Context, run *jobRun, state *dag.State) {
	if o.notifier == nil {
		return
	}
	completion := notify.Completion{
		MeetingID:   run.m.ID,
		JobID:       run.job.ID,
		CompletedAt: time.Now().UTC(),
	}
	if summary, err := dag.Read(state, portSummary); err == nil {
		completion.Summary = summary
	}
	// Notification is best-effort: the job already completed.
	if err := o.notifier.NotifyCompletion(ctx, completion); err != nil {
		o.log.Warn("completion notification failed", logger.Fields(
			logger.FieldMeetingID, run.m.ID,
			logger.FieldError, err.Error(),
		))
	}
}

// jobRun is the mutable per-job context shared by stage nodes. Status
// writes go through advance so concurrent stages in one level cannot move
// the meeting backwards.
type jobRun struct {
	o   *Orchestrator
	m   *meeting.Meeting
	job *meeting.Job
	mu  sync.Mutex
}

// advance moves the meeting to the stage's status if the transition is
// legal and records the stage on the job, then persists both. Persistence
// uses a context detached from job cancellation so a finishing stage always
// records its progress.
func (r *jobRun) advance(ctx context.Context, stage meeting.Stage) {
	next := meeting.StatusFor(stage)

	r.mu.Lock()
	if !r.m.Status.CanTransition(next) {
		r.mu.Unlock()
		return
	}
	r.m.Status = next
	r.m.UpdatedAt = time.Now().UTC()
	r.job.Stage = stage
	r.mu.Unlock()

	pctx := context.WithoutCancel(ctx)
	if err := r.o.store.PutMeeting(pctx, r.m); err != nil {
		r.o.log.Error("persist status", logger.ErrorFields("put_meeting", err))
	}
	if err := r.o.store.PutJob(pctx, r.job); err != nil {
		r.o.log.Error("persist job stage", logger.ErrorFields("put_job", err))
	}
}

// stageDone records the stage completion time.
func (r *jobRun) stageDone(ctx context.Context, stage meeting.Stage) {
	r.mu.Lock()
	if r.m.StageTimes == nil {
		r.m.StageTimes = make(map[meeting.Stage]time.Time)
	}
	r.m.StageTimes[stage] = time.Now().UTC()
	r.m.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()

	if err := r.o.store.PutMeeting(context.WithoutCancel(ctx), r.m); err != nil {
		r.o.log.Error("persist stage time", logger.ErrorFields("put_meeting", err))
	}
}

// recordRetry bumps the stage's retry counter and persists the job.
func (r *jobRun) recordRetry(ctx context.Context, stage meeting.Stage) {
	r.mu.Lock()
	if r.job.Retries == nil {
		r.job.Retries = make(map[meeting.Stage]int)
	}
	r.job.Retries[stage]++
	r.mu.Unlock()

	if err := r.o.store.PutJob(context.WithoutCancel(ctx), r.job); err != nil {
		r.o.log.Error("persist retry count", logger.ErrorFields("put_job", err))
	}
	r.o.metrics.RecordRetry(ctx, string(stage))
}

// checksum returns the canonical checksum under the run lock.
func (r *jobRun) checksum() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m.Checksum
}
