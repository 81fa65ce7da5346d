package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/neuralnotes/neuralnotes/align"
	"github.com/neuralnotes/neuralnotes/blob"
	"github.com/neuralnotes/neuralnotes/dag"
	"github.com/neuralnotes/neuralnotes/diarization"
	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/meeting"
	"github.com/neuralnotes/neuralnotes/resilience"
	"github.com/neuralnotes/neuralnotes/store"
	"github.com/neuralnotes/neuralnotes/transcription"
)

// State ports shared between stage nodes. Producing and consuming stages
// reference the same port, so artifact types are checked at compile time.
var (
	portAudio      = dag.Port[[]byte]{Key: "canonical_wav"}
	portTranscript = dag.Port[*meeting.Transcript]{Key: "transcript"}
	portTurns      = dag.Port[*diarization.Result]{Key: "speaker_turns"}
	portMerged     = dag.Port[*meeting.Transcript]{Key: "merged_transcript"}
	portSummary    = dag.Port[*meeting.Summary]{Key: "summary"}
)

// normalizeArtifact is the durable record of the normalize stage.
type normalizeArtifact struct {
	CanonicalRef    string  `json:"canonical_ref"`
	Checksum        string  `json:"checksum"`
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
}

// indexArtifact is the durable record of the index stage.
type indexArtifact struct {
	Chunks int `json:"chunks"`
}

// buildGraph assembles the stage graph for one job. Transcribe and diarize
// both depend only on normalize and share a level.
func (o *Orchestrator) buildGraph(run *jobRun) *dag.Graph {
	wrap := func(n dag.Node) dag.Node {
		return dag.WithTracing(dag.WithLogging(n, o.log), "pipeline")
	}
	nodes := []dag.Node{
		wrap(o.normalizeNode(run)),
		wrap(o.transcribeNode(run)),
		wrap(o.diarizeNode(run)),
		wrap(o.mergeNode(run)),
		wrap(o.synthesizeNode(run)),
		wrap(o.indexNode(run)),
	}
	edges := []dag.Edge{
		{From: string(meeting.StageNormalize), To: string(meeting.StageTranscribe)},
		{From: string(meeting.StageNormalize), To: string(meeting.StageDiarize)},
		{From: string(meeting.StageTranscribe), To: string(meeting.StageMerge)},
		{From: string(meeting.StageDiarize), To: string(meeting.StageMerge)},
		{From: string(meeting.StageMerge), To: string(meeting.StageSynthesize)},
		{From: string(meeting.StageSynthesize), To: string(meeting.StageIndex)},
	}
	return dag.NewGraph(nodes, edges)
}

// stageSpec describes one stage to the shared node wrapper.
type stageSpec struct {
	stage meeting.Stage
	// key returns the idempotency key, empty when unknown.
	key func() string
	// restore rebuilds state from a stored artifact payload. Nil means
	// the stage always executes; its work is cheap or non-reusable.
	restore func(ctx context.Context, state *dag.State, payload []byte) error
	// execute performs the work and returns the artifact payload.
	execute func(ctx context.Context, state *dag.State) ([]byte, error)
}

// stageNode wraps a stageSpec with the shared per-stage protocol: status
// advance, artifact reuse, classified retry, artifact persistence, and
// metrics. External calls run on a context detached from job cancellation
// so a running stage always finishes; cancellation takes effect between
// stages.
func (o *Orchestrator) stageNode(run *jobRun, spec stageSpec) dag.Node {
	return dag.NodeFunc{NodeName: string(spec.stage), Fn: func(ctx context.Context, state *dag.State) error {
		run.advance(ctx, spec.stage)
		start := time.Now()
		pctx := context.WithoutCancel(ctx)

		key := ""
		if spec.key != nil {
			key = spec.key()
		}

		if spec.restore != nil && key != "" {
			if payload, ok := o.lookupArtifact(pctx, run, spec.stage, key); ok {
				if err := spec.restore(pctx, state, payload); err == nil {
					run.stageDone(ctx, spec.stage)
					o.metrics.RecordStage(ctx, string(spec.stage), "reused", time.Since(start))
					o.log.Info("stage reused prior artifact", logger.Fields(
						logger.FieldMeetingID, run.m.ID,
						logger.FieldJobID, run.job.ID,
						logger.FieldStage, string(spec.stage),
					))
					return nil
				}
				o.log.Warn("stored artifact unusable, recomputing", logger.Fields(
					logger.FieldMeetingID, run.m.ID,
					logger.FieldStage, string(spec.stage),
				))
			}
		}

		var payload []byte
		retryCfg := o.cfg.Retry
		retryCfg.RetryIf = errors.IsRetryable
		retryCfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
			run.recordRetry(ctx, spec.stage)
			o.log.Warn("stage attempt failed, retrying", logger.Fields(
				logger.FieldMeetingID, run.m.ID,
				logger.FieldStage, string(spec.stage),
				logger.FieldAttempt, attempt,
				logger.FieldError, err.Error(),
				"backoff", backoff.String(),
			))
		}

		err := resilience.RetryFunc(ctx, retryCfg, func() error {
			var execErr error
			payload, execErr = spec.execute(pctx, state)
			return execErr
		})
		if err != nil {
			o.metrics.RecordStage(ctx, string(spec.stage), "failed", time.Since(start))
			return err
		}

		if spec.key != nil {
			key = spec.key() // normalize sets the checksum during execute
		}
		if key != "" && payload != nil {
			if err := o.commitArtifact(pctx, run, spec.stage, key, payload); err != nil {
				o.metrics.RecordStage(ctx, string(spec.stage), "failed", time.Since(start))
				return err
			}
		}

		run.stageDone(ctx, spec.stage)
		o.metrics.RecordStage(ctx, string(spec.stage), "completed", time.Since(start))
		return nil
	}}
}

// lookupArtifact checks the cache first, then the durable store, warming
// the cache on a store hit. Cache failures degrade to recomputation.
func (o *Orchestrator) lookupArtifact(ctx context.Context, run *jobRun, stage meeting.Stage, key string) ([]byte, bool) {
	if o.artifacts != nil {
		if payload, ok, err := o.artifacts.Get(ctx, string(stage), key); err == nil && ok {
			return payload, true
		} else if err != nil {
			o.log.Warn("artifact cache read failed", logger.ErrorFields("cache_get", err))
		}
	}

	art, err := o.store.FindArtifact(ctx, run.m.ID, stage, key)
	if err != nil {
		o.log.Warn("artifact lookup failed", logger.ErrorFields("find_artifact", err))
		return nil, false
	}
	if art == nil {
		return nil, false
	}
	if o.artifacts != nil {
		if err := o.artifacts.Put(ctx, string(stage), key, art.Payload, o.cfg.ArtifactTTL); err != nil {
			o.log.Warn("artifact cache warm failed", logger.ErrorFields("cache_put", err))
		}
	}
	return art.Payload, true
}

// commitArtifact appends the durable record and caches it. A store
// failure fails the stage; a cache failure is only logged.
func (o *Orchestrator) commitArtifact(ctx context.Context, run *jobRun, stage meeting.Stage, key string, payload []byte) error {
	art := &store.Artifact{
		MeetingID:     run.m.ID,
		JobID:         run.job.ID,
		Stage:         stage,
		InputChecksum: key,
		Payload:       payload,
	}
	if err := o.store.AppendArtifact(ctx, art); err != nil {
		return err
	}
	if o.artifacts != nil {
		if err := o.artifacts.Put(ctx, string(stage), key, payload, o.cfg.ArtifactTTL); err != nil {
			o.log.Warn("artifact cache write failed", logger.ErrorFields("cache_put", err))
		}
	}
	return nil
}

func (o *Orchestrator) normalizeNode(run *jobRun) dag.Node {
	return o.stageNode(run, stageSpec{
		stage: meeting.StageNormalize,
		key:   run.checksum,
		restore: func(ctx context.Context, state *dag.State, payload []byte) error {
			var art normalizeArtifact
			if err := json.Unmarshal(payload, &art); err != nil {
				return err
			}
			wav, err := blob.ReadAll(ctx, o.blobs, art.CanonicalRef)
			if err != nil {
				return err
			}
			dag.Write(state, portAudio, wav)
			return nil
		},
		execute: func(ctx context.Context, state *dag.State) ([]byte, error) {
			raw, err := blob.ReadAll(ctx, o.blobs, run.m.AudioRef)
			if err != nil {
				return nil, errors.Consistency("normalize: read upload").WithCause(err)
			}

			canonical, err := o.normalizer.Normalize(ctx, path.Base(run.m.AudioRef), raw)
			if err != nil {
				return nil, err
			}

			ref := blob.CanonicalKey(run.m.ID)
			if err := o.blobs.Upload(ctx, ref, bytes.NewReader(canonical.WAV)); err != nil {
				return nil, errors.Internal(err)
			}

			run.mu.Lock()
			run.m.CanonicalRef = ref
			run.m.Checksum = canonical.Checksum
			run.mu.Unlock()

			dag.Write(state, portAudio, canonical.WAV)
			return json.Marshal(normalizeArtifact{
				CanonicalRef:    ref,
				Checksum:        canonical.Checksum,
				DurationSeconds: canonical.DurationSeconds,
				SampleRate:      canonical.SampleRate,
			})
		},
	})
}

func (o *Orchestrator) transcribeNode(run *jobRun) dag.Node {
	return o.stageNode(run, stageSpec{
		stage: meeting.StageTranscribe,
		key:   run.checksum,
		restore: func(_ context.Context, state *dag.State, payload []byte) error {
			var t meeting.Transcript
			if err := json.Unmarshal(payload, &t); err != nil {
				return err
			}
			dag.Write(state, portTranscript, &t)
			return nil
		},
		execute: func(ctx context.Context, state *dag.State) ([]byte, error) {
			wav, err := dag.Read(state, portAudio)
			if err != nil {
				return nil, errors.Consistency(err.Error())
			}
			transcript, err := o.asr.Transcribe(ctx, transcription.Request{Audio: wav})
			if err != nil {
				return nil, err
			}
			dag.Write(state, portTranscript, transcript)
			return json.Marshal(transcript)
		},
	})
}

func (o *Orchestrator) diarizeNode(run *jobRun) dag.Node {
	return o.stageNode(run, stageSpec{
		stage: meeting.StageDiarize,
		key:   run.checksum,
		restore: func(_ context.Context, state *dag.State, payload []byte) error {
			var r diarization.Result
			if err := json.Unmarshal(payload, &r); err != nil {
				return err
			}
			dag.Write(state, portTurns, &r)
			return nil
		},
		execute: func(ctx context.Context, state *dag.State) ([]byte, error) {
			wav, err := dag.Read(state, portAudio)
			if err != nil {
				return nil, errors.Consistency(err.Error())
			}
			result, err := o.diarizer.Diarize(ctx, diarization.Request{Audio: wav})
			if err != nil {
				return nil, err
			}
			dag.Write(state, portTurns, result)
			return json.Marshal(result)
		},
	})
}

// mergeNode always executes: alignment is deterministic and cheap, and
// rerunning it keeps the merged transcript consistent with whichever
// transcript and turns this job used.
func (o *Orchestrator) mergeNode(run *jobRun) dag.Node {
	return o.stageNode(run, stageSpec{
		stage: meeting.StageMerge,
		key:   run.checksum,
		execute: func(_ context.Context, state *dag.State) ([]byte, error) {
			transcript, err := dag.Read(state, portTranscript)
			if err != nil {
				return nil, errors.Consistency(err.Error())
			}
			turns, err := dag.Read(state, portTurns)
			if err != nil {
				return nil, errors.Consistency(err.Error())
			}
			merged, err := align.Merge(transcript, turns.Turns)
			if err != nil {
				return nil, err
			}
			dag.Write(state, portMerged, merged)
			return json.Marshal(merged)
		},
	})
}

func (o *Orchestrator) synthesizeNode(run *jobRun) dag.Node {
	return o.stageNode(run, stageSpec{
		stage: meeting.StageSynthesize,
		key:   run.checksum,
		restore: func(ctx context.Context, state *dag.State, payload []byte) error {
			var s meeting.Summary
			if err := json.Unmarshal(payload, &s); err != nil {
				return err
			}
			s.MeetingID = run.m.ID
			s.JobID = run.job.ID
			if err := o.store.PutSummary(ctx, &s); err != nil {
				return err
			}
			dag.Write(state, portSummary, &s)
			return nil
		},
		execute: func(ctx context.Context, state *dag.State) ([]byte, error) {
			merged, err := dag.Read(state, portMerged)
			if err != nil {
				return nil, errors.Consistency(err.Error())
			}
			summary, err := o.synth.Synthesize(ctx, run.m.ID, run.job.ID, merged)
			if err != nil {
				return nil, err
			}
			if err := o.store.PutSummary(ctx, summary); err != nil {
				return nil, err
			}
			dag.Write(state, portSummary, summary)
			return json.Marshal(summary)
		},
	})
}

// indexNode always executes; ReplaceChunkSet is atomic and re-embedding is
// required anyway when the chunk set belongs to a superseded job.
func (o *Orchestrator) indexNode(run *jobRun) dag.Node {
	return o.stageNode(run, stageSpec{
		stage: meeting.StageIndex,
		key:   run.checksum,
		execute: func(ctx context.Context, state *dag.State) ([]byte, error) {
			merged, err := dag.Read(state, portMerged)
			if err != nil {
				return nil, errors.Consistency(err.Error())
			}
			chunks, err := o.indexer.IndexTranscript(ctx, run.m.ID, run.job.ID, merged)
			if err != nil {
				return nil, err
			}
			return json.Marshal(indexArtifact{Chunks: len(chunks)})
		},
	})
}
