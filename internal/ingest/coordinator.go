// Package ingest drives one ingestion job through its stages: acquire a
// transcript, chunk it, embed the chunks, write the vectors. The coordinator
// owns the job's status, in-stage retries, and the failure classification the
// queue acts on.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/vidqa/ingestor/internal/chunker"
	"github.com/vidqa/ingestor/internal/embeddings"
	"github.com/vidqa/ingestor/internal/ingesterrors"
	"github.com/vidqa/ingestor/internal/models"
	"github.com/vidqa/ingestor/internal/transcript"
	"github.com/vidqa/ingestor/internal/vectorstore"
)

// FallbackTranscriber produces a transcript from the video's audio track.
// Invoked at most once per job attempt, only when the primary source reports
// no transcript.
type FallbackTranscriber interface {
	Transcribe(ctx context.Context, videoID string) ([]models.TranscriptSegment, error)
}

// VectorWriter upserts record batches and reports per-key outcomes.
type VectorWriter interface {
	UpsertBatch(ctx context.Context, records []models.VectorRecord) (*vectorstore.WriteReport, error)
}

// Metrics receives coordinator observations. A nil Metrics disables them.
type Metrics interface {
	StageObserved(ctx context.Context, stage models.JobStatus, duration time.Duration, err error)
	JobObserved(ctx context.Context, status models.JobStatus, duration time.Duration, chunks int)
}

// StageTimeouts bounds each stage's wall-clock time. The transcribing budget
// covers download, submission, and the whole polling wait.
type StageTimeouts struct {
	Acquire    time.Duration
	Transcribe time.Duration
	Embed      time.Duration
	Write      time.Duration
}

// DefaultStageTimeouts leaves generous room for the transcription wait and
// keeps the synchronous stages tight.
func DefaultStageTimeouts() StageTimeouts {
	return StageTimeouts{
		Acquire:    30 * time.Second,
		Transcribe: 20 * time.Minute,
		Embed:      2 * time.Minute,
		Write:      time.Minute,
	}
}

func (t StageTimeouts) validate() error {
	if t.Acquire <= 0 || t.Transcribe <= 0 || t.Embed <= 0 || t.Write <= 0 {
		return fmt.Errorf("stage timeouts must all be positive, got %+v", t)
	}

	return nil
}

// Options assembles a Coordinator. Source, Fallback, Chunker, Embedder, and
// Writer are required; Limiter and Metrics are optional.
type Options struct {
	Source   transcript.Source
	Fallback FallbackTranscriber
	Chunker  *chunker.Chunker
	Embedder embeddings.Client
	Writer   VectorWriter

	// Limiter throttles embedding calls across all workers.
	Limiter *rate.Limiter
	Metrics Metrics

	Retry    RetryPolicy
	Timeouts StageTimeouts
}

// Coordinator runs jobs start to finish. It is safe for concurrent use; all
// per-job state lives in the job passed to Run.
type Coordinator struct {
	source   transcript.Source
	fallback FallbackTranscriber
	chunker  *chunker.Chunker
	embedder embeddings.Client
	writer   VectorWriter
	limiter  *rate.Limiter
	metrics  Metrics
	retry    RetryPolicy
	timeouts StageTimeouts
}

// NewCoordinator validates opts and builds a Coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Source == nil || opts.Fallback == nil || opts.Chunker == nil || opts.Embedder == nil || opts.Writer == nil {
		return nil, errors.New("ingest: source, fallback, chunker, embedder, and writer are all required")
	}

	if err := opts.Retry.validate(); err != nil {
		return nil, err
	}

	if err := opts.Timeouts.validate(); err != nil {
		return nil, err
	}

	return &Coordinator{
		source:   opts.Source,
		fallback: opts.Fallback,
		chunker:  opts.Chunker,
		embedder: opts.Embedder,
		writer:   opts.Writer,
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
		retry:    opts.Retry,
		timeouts: opts.Timeouts,
	}, nil
}

// Run processes the job to completion or failure. The returned error carries
// its classification; the caller decides between requeue and dead-letter.
func (c *Coordinator) Run(ctx context.Context, job *models.IngestionJob) error {
	started := time.Now()

	logger := slog.With(
		"video_id", job.VideoID,
		"collection_id", job.CollectionID,
		"attempt", job.AttemptCount,
	)
	logger.Info("ingestion started")

	chunks, err := c.process(ctx, job, logger)

	duration := time.Since(started)

	if err != nil {
		failedStage := job.Status
		job.Status = models.StatusFailed
		c.observeJob(ctx, models.StatusFailed, duration, 0)
		logger.Error("ingestion failed",
			"stage", failedStage,
			"kind", ingesterrors.Classify(err).String(),
			"duration", duration,
			"error", err,
		)

		return err
	}

	job.Status = models.StatusCompleted
	c.observeJob(ctx, models.StatusCompleted, duration, chunks)
	logger.Info("ingestion completed", "chunks", chunks, "duration", duration)

	return nil
}

func (c *Coordinator) process(ctx context.Context, job *models.IngestionJob, logger *slog.Logger) (int, error) {
	segments, err := c.acquireTranscript(ctx, job, logger)
	if err != nil {
		return 0, err
	}

	job.Status = models.StatusChunking

	chunks := c.chunker.Chunk(segments)
	if len(chunks) == 0 {
		return 0, ingesterrors.Permanent(fmt.Errorf("transcript for %s produced no chunks", job.VideoID))
	}

	vectors, err := c.embedChunks(ctx, job, chunks)
	if err != nil {
		return 0, err
	}

	records := make([]models.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = models.NewVectorRecord(job.CollectionID, job.VideoID, c.embedder.Model(), chunk, vectors[i])
	}

	if err := c.writeRecords(ctx, job, records, logger); err != nil {
		return 0, err
	}

	return len(chunks), nil
}

// acquireTranscript tries the primary source with in-stage retries, falling
// back to audio transcription only when the platform has no transcript. The
// fallback runs at most once per attempt; its transient failures go back to
// the queue instead of looping here.
func (c *Coordinator) acquireTranscript(ctx context.Context, job *models.IngestionJob, logger *slog.Logger) ([]models.TranscriptSegment, error) {
	job.Status = models.StatusAcquiringTranscript

	var segments []models.TranscriptSegment

	err := c.observeStage(ctx, models.StatusAcquiringTranscript, func() error {
		return retryStage(ctx, c.retry, "acquiring_transcript", func(ctx context.Context) error {
			stageCtx, cancel := context.WithTimeout(ctx, c.timeouts.Acquire)
			defer cancel()

			var fetchErr error
			segments, fetchErr = c.source.FetchTranscript(stageCtx, job.VideoID)

			return fetchErr
		})
	})

	if err == nil {
		return segments, nil
	}

	if !errors.Is(err, ingesterrors.ErrNoTranscript) {
		return nil, fmt.Errorf("acquiring transcript: %w", err)
	}

	logger.Info("no transcript available, falling back to audio transcription")

	job.Status = models.StatusTranscribingAudio

	err = c.observeStage(ctx, models.StatusTranscribingAudio, func() error {
		stageCtx, cancel := context.WithTimeout(ctx, c.timeouts.Transcribe)
		defer cancel()

		var transcribeErr error
		segments, transcribeErr = c.fallback.Transcribe(stageCtx, job.VideoID)

		return transcribeErr
	})
	if err != nil {
		return nil, fmt.Errorf("transcribing audio: %w", err)
	}

	return segments, nil
}

func (c *Coordinator) embedChunks(ctx context.Context, job *models.IngestionJob, chunks []models.Chunk) ([][]float32, error) {
	job.Status = models.StatusEmbedding

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var vectors [][]float32

	err := c.observeStage(ctx, models.StatusEmbedding, func() error {
		return retryStage(ctx, c.retry, "embedding", func(ctx context.Context) error {
			if c.limiter != nil {
				if err := c.limiter.WaitN(ctx, len(texts)); err != nil {
					return err
				}
			}

			stageCtx, cancel := context.WithTimeout(ctx, c.timeouts.Embed)
			defer cancel()

			var embedErr error
			vectors, embedErr = c.embedder.EmbedBatch(stageCtx, texts)

			return embedErr
		})
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	if len(vectors) != len(chunks) {
		return nil, ingesterrors.Permanent(
			fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	return vectors, nil
}

// writeRecords upserts the batch, retrying only the keys that failed
// transiently. A single permanently rejected key fails the whole job; its
// siblings are already written and the next ingestion overwrites them anyway.
func (c *Coordinator) writeRecords(ctx context.Context, job *models.IngestionJob, records []models.VectorRecord, logger *slog.Logger) error {
	job.Status = models.StatusWriting

	pending := records

	err := c.observeStage(ctx, models.StatusWriting, func() error {
		return retryStage(ctx, c.retry, "writing", func(ctx context.Context) error {
			stageCtx, cancel := context.WithTimeout(ctx, c.timeouts.Write)
			defer cancel()

			report, err := c.writer.UpsertBatch(stageCtx, pending)
			if err != nil {
				return err
			}

			if report.AllSucceeded() {
				return nil
			}

			var (
				retryable []models.VectorRecord
				lastErr   error
			)

			for _, rec := range pending {
				keyErr, failed := report.Failed[rec.Key]
				if !failed {
					continue
				}

				if ingesterrors.Classify(keyErr) == ingesterrors.KindPermanent {
					return fmt.Errorf("record %s: %w", rec.Key, keyErr)
				}

				retryable = append(retryable, rec)
				lastErr = keyErr
			}

			logger.Warn("partial write, retrying failed records",
				"failed", len(retryable),
				"succeeded", report.Succeeded,
			)

			pending = retryable

			return fmt.Errorf("%d of %d records failed: %w", len(retryable), len(records), lastErr)
		})
	})
	if err != nil {
		return fmt.Errorf("writing vector records: %w", err)
	}

	return nil
}

func (c *Coordinator) observeStage(ctx context.Context, stage models.JobStatus, fn func() error) error {
	started := time.Now()
	err := fn()

	if c.metrics != nil {
		c.metrics.StageObserved(ctx, stage, time.Since(started), err)
	}

	return err
}

func (c *Coordinator) observeJob(ctx context.Context, status models.JobStatus, duration time.Duration, chunks int) {
	if c.metrics != nil {
		c.metrics.JobObserved(ctx, status, duration, chunks)
	}
}
