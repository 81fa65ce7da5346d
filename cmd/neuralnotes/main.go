// Command neuralnotes runs the meeting intelligence service: the HTTP
// API, the processing pipeline, and their backing stores in one binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/neuralnotes/neuralnotes/audio"
	"github.com/neuralnotes/neuralnotes/blob"
	"github.com/neuralnotes/neuralnotes/cache"
	"github.com/neuralnotes/neuralnotes/config"
	"github.com/neuralnotes/neuralnotes/diarization"
	"github.com/neuralnotes/neuralnotes/diarization/pyannote"
	"github.com/neuralnotes/neuralnotes/embedding"
	embollama "github.com/neuralnotes/neuralnotes/embedding/ollama"
	"github.com/neuralnotes/neuralnotes/index"
	"github.com/neuralnotes/neuralnotes/llm"
	llmollama "github.com/neuralnotes/neuralnotes/llm/ollama"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/notify"
	"github.com/neuralnotes/neuralnotes/observability"
	"github.com/neuralnotes/neuralnotes/pipeline"
	"github.com/neuralnotes/neuralnotes/provider"
	"github.com/neuralnotes/neuralnotes/query"
	"github.com/neuralnotes/neuralnotes/resilience"
	"github.com/neuralnotes/neuralnotes/server"
	"github.com/neuralnotes/neuralnotes/store"
	"github.com/neuralnotes/neuralnotes/synthesis"
	"github.com/neuralnotes/neuralnotes/transcription"
	"github.com/neuralnotes/neuralnotes/transcription/whisper"
	"github.com/neuralnotes/neuralnotes/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "neuralnotes:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.Config
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(&cfg.Logging, "neuralnotes")
	logger.SetRoot(log)
	log.Info("starting", logger.Fields(
		"version", version.Short(),
		"environment", cfg.Environment,
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.Init(ctx, cfg.Observability, log)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			log.Warn("observability shutdown", logger.ErrorFields("shutdown", err))
		}
	}()

	db, err := store.OpenDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	st, err := store.NewGormStore(db)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	blobs, err := blob.New(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	var artifacts cache.ArtifactCache
	if cfg.CacheEnabled() {
		redisCache := cache.NewRedisCache(cfg.Redis, log)
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		defer redisCache.Close()
		artifacts = redisCache
	} else {
		artifacts = cache.NewMemoryCache()
	}

	var notifier notify.Notifier
	if cfg.KafkaEnabled() {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.Kafka, log)
		if err != nil {
			return fmt.Errorf("init kafka notifier: %w", err)
		}
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	// Every external capability shares one rate limiter and one
	// concurrent-call ceiling across all jobs.
	asr := transcription.WithResilience(whisper.NewProvider(cfg.Whisper), cfg.Limits.Resilience("whisper"))
	diarizer := diarization.WithResilience(pyannote.NewProvider(cfg.Pyannote), cfg.Limits.Resilience("pyannote"))
	embedder := embedding.WithResilience(embollama.NewProvider(cfg.Embedding), cfg.Limits.Resilience("embedding"))

	// The language model additionally sits behind a breaker: synthesis fans
	// windows out and a dead sidecar should fail fast.
	llmRes := cfg.Limits.Resilience("llm")
	cb := resilience.DefaultCircuitBreakerConfig("llm")
	llmRes.CircuitBreaker = &cb
	llmProvider := llm.WithResilience(llmollama.NewProvider(cfg.LLM), llmRes)

	normalizer := audio.NewNormalizer(cfg.Audio, log)
	synth := synthesis.NewEngine(llmProvider, cfg.Synthesis, log)
	indexer := index.NewIndexer(embedder, st, cfg.Chunker, log)
	queries := query.NewEngine(embedder, llmProvider, st, cfg.Query, log)

	metrics, err := observability.NewPipelineMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	orch := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Store:      st,
		Blobs:      blobs,
		Artifacts:  artifacts,
		Normalizer: normalizer,
		ASR:        asr,
		Diarizer:   diarizer,
		Synthesis:  synth,
		Indexer:    indexer,
		Notifier:   notifier,
		Metrics:    metrics,
	}, log)
	orch.Start(ctx)

	srv := server.New(cfg.Server, log)
	api := server.NewAPI(server.APIDeps{
		Store:      st,
		Blobs:      blobs,
		Normalizer: normalizer,
		Orch:       orch,
		Queries:    queries,
		Providers: map[string]provider.Provider{
			"whisper":  asr,
			"pyannote": diarizer,
			"llm":      llmProvider,
			"embedder": embedder,
		},
	}, log)
	api.Register(srv.Engine())

	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")

	if err := srv.Stop(context.Background()); err != nil {
		log.Error("server stop", logger.ErrorFields("stop", err))
	}
	orch.Wait()
	return nil
}
