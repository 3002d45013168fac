// Package workers provides the River workers that drive ingestion.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/vidqa/ingestor/internal/ingesterrors"
	"github.com/vidqa/ingestor/internal/jobs"
	"github.com/vidqa/ingestor/internal/models"
	"github.com/vidqa/ingestor/pkg/youtube"
)

// JobRunner processes one ingestion job start to finish.
type JobRunner interface {
	Run(ctx context.Context, job *models.IngestionJob) error
}

// IngestVideoWorker turns queue messages into ingestion runs. Classification
// decides the message's fate: transient failures go back to the queue for
// River's retry schedule, permanent ones are cancelled into the dead-letter
// states immediately.
type IngestVideoWorker struct {
	river.WorkerDefaults[jobs.IngestArgs]

	runner  JobRunner
	timeout time.Duration
}

// NewIngestVideoWorker creates the worker. timeout bounds one whole job run,
// including the audio-transcription wait; zero uses the default.
func NewIngestVideoWorker(runner JobRunner, timeout time.Duration) *IngestVideoWorker {
	if timeout <= 0 {
		timeout = defaultIngestTimeout
	}

	return &IngestVideoWorker{runner: runner, timeout: timeout}
}

const defaultIngestTimeout = 30 * time.Minute

// Timeout limits how long a single ingestion job can run.
func (w *IngestVideoWorker) Timeout(*river.Job[jobs.IngestArgs]) time.Duration {
	return w.timeout
}

// Work validates the message, extracts the video identity, and runs the
// pipeline.
func (w *IngestVideoWorker) Work(ctx context.Context, job *river.Job[jobs.IngestArgs]) error {
	args := job.Args

	if err := args.Validate(); err != nil {
		slog.Error("malformed ingest message",
			"job_id", job.ID,
			"error", err,
		)

		return river.JobCancel(err)
	}

	videoID, err := youtube.ExtractVideoID(args.VideoURL)
	if err != nil {
		slog.Error("unparseable video url",
			"job_id", job.ID,
			"video_url", args.VideoURL,
			"error", err,
		)

		return river.JobCancel(fmt.Errorf("extract video id: %w", err))
	}

	ingestion := &models.IngestionJob{
		VideoID:      videoID,
		CollectionID: args.CollectionID,
		SourceURL:    args.VideoURL,
		Status:       models.StatusReceived,
		AttemptCount: job.Attempt,
	}

	if err := w.runner.Run(ctx, ingestion); err != nil {
		if ingesterrors.Classify(err) != ingesterrors.KindTransient {
			return river.JobCancel(err)
		}

		return err
	}

	return nil
}
