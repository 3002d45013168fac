package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vidqa/ingestor/internal/ingesterrors"
	"github.com/vidqa/ingestor/internal/models"
)

// Metric names. All durations record in seconds.
const (
	MetricNameJobsTotal        = "ingest_jobs_total"
	MetricNameJobDuration      = "ingest_job_duration_seconds"
	MetricNameStageDuration    = "ingest_stage_duration_seconds"
	MetricNameStageFailures    = "ingest_stage_failures_total"
	MetricNameChunksWritten    = "ingest_chunks_written_total"
	MetricNameQueueDepth       = "ingest_queue_depth"
	MetricNameMessagesEnqueued = "ingest_messages_enqueued_total"
)

const (
	attrStage   = "stage"
	attrStatus  = "status"
	attrOutcome = "outcome"
	attrKind    = "kind"
)

// IngestMetrics records pipeline observations. A nil value disables them.
type IngestMetrics struct {
	jobsTotal     metric.Int64Counter
	jobDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
	stageFailures metric.Int64Counter
	chunksWritten metric.Int64Counter
	queueDepth    metric.Int64Gauge
	enqueued      metric.Int64Counter
}

// NewIngestMetrics creates the pipeline instruments. Returns (nil, nil) when
// meter is nil (metrics disabled); callers check for nil.
func NewIngestMetrics(meter metric.Meter) (*IngestMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	jobsTotal, err := meter.Int64Counter(
		MetricNameJobsTotal,
		metric.WithDescription("Total ingestion jobs by terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create jobs counter: %w", err)
	}

	jobDuration, err := meter.Float64Histogram(
		MetricNameJobDuration,
		metric.WithDescription("Whole-job duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create job duration histogram: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		MetricNameStageDuration,
		metric.WithDescription("Per-stage duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage duration histogram: %w", err)
	}

	stageFailures, err := meter.Int64Counter(
		MetricNameStageFailures,
		metric.WithDescription("Stage failures by stage and error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage failures counter: %w", err)
	}

	chunksWritten, err := meter.Int64Counter(
		MetricNameChunksWritten,
		metric.WithDescription("Total chunks written by completed jobs"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chunks written counter: %w", err)
	}

	queueDepth, err := meter.Int64Gauge(
		MetricNameQueueDepth,
		metric.WithDescription("Ingest jobs waiting in the queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("create queue depth gauge: %w", err)
	}

	enqueued, err := meter.Int64Counter(
		MetricNameMessagesEnqueued,
		metric.WithDescription("Total ingest messages enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("create enqueued counter: %w", err)
	}

	return &IngestMetrics{
		jobsTotal:     jobsTotal,
		jobDuration:   jobDuration,
		stageDuration: stageDuration,
		stageFailures: stageFailures,
		chunksWritten: chunksWritten,
		queueDepth:    queueDepth,
		enqueued:      enqueued,
	}, nil
}

// StageObserved records one stage execution with its outcome.
func (m *IngestMetrics) StageObserved(ctx context.Context, stage models.JobStatus, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		m.stageFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrStage, string(stage)),
			attribute.String(attrKind, ingesterrors.Classify(err).String()),
		))
	}

	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrStage, string(stage)),
		attribute.String(attrOutcome, outcome),
	))
}

// JobObserved records a job reaching a terminal status.
func (m *IngestMetrics) JobObserved(ctx context.Context, status models.JobStatus, duration time.Duration, chunks int) {
	attrs := metric.WithAttributes(attribute.String(attrStatus, string(status)))

	m.jobsTotal.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, duration.Seconds(), attrs)

	if chunks > 0 {
		m.chunksWritten.Add(ctx, int64(chunks))
	}
}

// RecordEnqueued counts accepted ingest submissions.
func (m *IngestMetrics) RecordEnqueued(ctx context.Context, count int64) {
	m.enqueued.Add(ctx, count)
}

// SetQueueDepth records the current number of waiting jobs.
func (m *IngestMetrics) SetQueueDepth(ctx context.Context, depth int64) {
	m.queueDepth.Record(ctx, depth)
}
