package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidqa/ingestor/internal/ingesterrors"
	"github.com/vidqa/ingestor/internal/jobs"
	"github.com/vidqa/ingestor/internal/models"
)

type fakeRunner struct {
	err   error
	calls int
	last  *models.IngestionJob
}

func (f *fakeRunner) Run(_ context.Context, job *models.IngestionJob) error {
	f.calls++
	f.last = job

	if f.err != nil {
		return f.err
	}

	job.Status = models.StatusCompleted

	return nil
}

func ingestJob(args jobs.IngestArgs) *river.Job[jobs.IngestArgs] {
	return &river.Job[jobs.IngestArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Attempt: 1, MaxAttempts: 5},
		Args:   args,
	}
}

func validArgs() jobs.IngestArgs {
	return jobs.IngestArgs{
		VideoURL:     "https://www.youtube.com/watch?v=ABC123xyz00",
		CollectionID: "col1",
	}
}

func TestIngestVideoWorker_Success(t *testing.T) {
	runner := &fakeRunner{}
	worker := NewIngestVideoWorker(runner, time.Minute)

	err := worker.Work(context.Background(), ingestJob(validArgs()))
	require.NoError(t, err)

	require.Equal(t, 1, runner.calls)
	assert.Equal(t, "ABC123xyz00", runner.last.VideoID)
	assert.Equal(t, "col1", runner.last.CollectionID)
	assert.Equal(t, 1, runner.last.AttemptCount)
}

func TestIngestVideoWorker_MalformedMessageIsNotProcessed(t *testing.T) {
	runner := &fakeRunner{}
	worker := NewIngestVideoWorker(runner, time.Minute)

	tests := []struct {
		name string
		args jobs.IngestArgs
	}{
		{"missing collection", jobs.IngestArgs{VideoURL: "https://www.youtube.com/watch?v=ABC123xyz00"}},
		{"missing url", jobs.IngestArgs{CollectionID: "col1"}},
		{"not a url", jobs.IngestArgs{VideoURL: "definitely not", CollectionID: "col1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := worker.Work(context.Background(), ingestJob(tt.args))
			assert.Error(t, err)
		})
	}

	assert.Equal(t, 0, runner.calls, "malformed messages must be rejected at the boundary")
}

func TestIngestVideoWorker_UnrecognizedVideoURL(t *testing.T) {
	runner := &fakeRunner{}
	worker := NewIngestVideoWorker(runner, time.Minute)

	args := jobs.IngestArgs{
		VideoURL:     "https://example.com/some/page",
		CollectionID: "col1",
	}

	err := worker.Work(context.Background(), ingestJob(args))
	assert.Error(t, err)
	assert.Equal(t, 0, runner.calls)
}

func TestIngestVideoWorker_TransientErrorIsReturnedForRetry(t *testing.T) {
	transient := ingesterrors.Transient(errors.New("upstream 503"))
	runner := &fakeRunner{err: transient}
	worker := NewIngestVideoWorker(runner, time.Minute)

	err := worker.Work(context.Background(), ingestJob(validArgs()))
	require.Error(t, err)
	assert.ErrorIs(t, err, transient, "transient errors pass through unwrapped so River schedules a retry")
}

func TestIngestVideoWorker_PermanentErrorCancelsJob(t *testing.T) {
	runner := &fakeRunner{err: ingesterrors.NewNoTranscriptError("ABC123xyz00")}
	worker := NewIngestVideoWorker(runner, time.Minute)

	err := worker.Work(context.Background(), ingestJob(validArgs()))
	require.Error(t, err)
	assert.Equal(t, 1, runner.calls)
}

func TestIngestVideoWorker_DefaultTimeout(t *testing.T) {
	worker := NewIngestVideoWorker(&fakeRunner{}, 0)
	assert.Equal(t, defaultIngestTimeout, worker.Timeout(ingestJob(validArgs())))

	worker = NewIngestVideoWorker(&fakeRunner{}, time.Minute)
	assert.Equal(t, time.Minute, worker.Timeout(ingestJob(validArgs())))
}
