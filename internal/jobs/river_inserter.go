package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// RiverJobInserter implements JobInserter using the River client.
type RiverJobInserter struct {
	client *river.Client[pgx.Tx]
}

// NewRiverJobInserter creates a new River-based job inserter.
func NewRiverJobInserter(client *river.Client[pgx.Tx]) *RiverJobInserter {
	return &RiverJobInserter{client: client}
}

// InsertIngestJob enqueues an ingestion job with uniqueness constraints so
// resubmitting a video that is already queued does not double the work.
func (r *RiverJobInserter) InsertIngestJob(ctx context.Context, args IngestArgs) error {
	if err := args.Validate(); err != nil {
		return err
	}

	_, err := r.client.Insert(ctx, args, &river.InsertOpts{
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStatePending,
				rivertype.JobStateAvailable,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("insert ingest job: %w", err)
	}

	return nil
}
