package jobs

import (
	"context"
)

// JobInserter enqueues ingestion jobs without exposing the queue
// implementation to callers.
type JobInserter interface {
	// InsertIngestJob enqueues one video for ingestion. Duplicate
	// submissions of the same message while one is still pending are
	// collapsed into the existing job.
	InsertIngestJob(ctx context.Context, args IngestArgs) error
}
