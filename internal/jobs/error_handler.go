package jobs

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/vidqa/ingestor/internal/ingesterrors"
)

// ErrorHandler logs job errors and panics with their failure classification.
type ErrorHandler struct{}

// HandleError is called when a job returns an error. Returning nil keeps
// River's schedule: transient failures retry with backoff until MaxAttempts,
// cancelled jobs (permanent failures) go straight to the dead-letter states.
func (h *ErrorHandler) HandleError(_ context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	slog.Error("ingest job failed",
		"job_kind", job.Kind,
		"job_id", job.ID,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
		"kind", ingesterrors.Classify(err).String(),
		"error", err,
	)

	return nil
}

// HandlePanic is called when a job panics. The panic is treated like an
// errored attempt and retried on River's schedule.
func (h *ErrorHandler) HandlePanic(_ context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	slog.Error("ingest job panicked",
		"job_kind", job.Kind,
		"job_id", job.ID,
		"attempt", job.Attempt,
		"panic_value", panicVal,
		"stack_trace", trace,
	)

	return nil
}
