package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the instruments recorded by the orchestrator and
// the query engine. Instruments are created on the global meter, so they
// are no-ops until Init runs with metrics enabled.
type PipelineMetrics struct {
	stageTotal    metric.Int64Counter
	stageDuration metric.Float64Histogram
	stageRetries  metric.Int64Counter
	jobsActive    metric.Int64UpDownCounter
	jobsTotal     metric.Int64Counter
	queryTotal    metric.Int64Counter
	queryDuration metric.Float64Histogram
}

// NewPipelineMetrics creates the instrument set.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter(tracerName)

	stageTotal, err := meter.Int64Counter("pipeline.stage.total",
		metric.WithDescription("Stage executions by stage and status"))
	if err != nil {
		return nil, fmt.Errorf("observability: stage.total: %w", err)
	}
	stageDuration, err := meter.Float64Histogram("pipeline.stage.duration",
		metric.WithDescription("Stage duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("observability: stage.duration: %w", err)
	}
	stageRetries, err := meter.Int64Counter("pipeline.stage.retries",
		metric.WithDescription("Stage retry attempts"))
	if err != nil {
		return nil, fmt.Errorf("observability: stage.retries: %w", err)
	}
	jobsActive, err := meter.Int64UpDownCounter("pipeline.jobs.active",
		metric.WithDescription("Jobs currently processing"))
	if err != nil {
		return nil, fmt.Errorf("observability: jobs.active: %w", err)
	}
	jobsTotal, err := meter.Int64Counter("pipeline.jobs.total",
		metric.WithDescription("Finished jobs by outcome"))
	if err != nil {
		return nil, fmt.Errorf("observability: jobs.total: %w", err)
	}
	queryTotal, err := meter.Int64Counter("query.total",
		metric.WithDescription("Queries by answerability"))
	if err != nil {
		return nil, fmt.Errorf("observability: query.total: %w", err)
	}
	queryDuration, err := meter.Float64Histogram("query.duration",
		metric.WithDescription("Query duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("observability: query.duration: %w", err)
	}

	return &PipelineMetrics{
		stageTotal:    stageTotal,
		stageDuration: stageDuration,
		stageRetries:  stageRetries,
		jobsActive:    jobsActive,
		jobsTotal:     jobsTotal,
		queryTotal:    queryTotal,
		queryDuration: queryDuration,
	}, nil
}

// RecordStage records one finished stage execution.
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

// RecordRetry counts one retry attempt for a stage.
func (m *PipelineMetrics) RecordRetry(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.stageRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// JobStarted increments the active-job gauge.
func (m *PipelineMetrics) JobStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.jobsActive.Add(ctx, 1)
}

// JobFinished decrements the gauge and counts the outcome.
func (m *PipelineMetrics) JobFinished(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.jobsActive.Add(ctx, -1)
	m.jobsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordQuery records one query execution.
func (m *PipelineMetrics) RecordQuery(ctx context.Context, answerable bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.queryTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("answerable", answerable)))
	m.queryDuration.Record(ctx, duration.Seconds())
}
