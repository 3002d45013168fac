// Package vectorstore persists chunk embeddings in Postgres with pgvector.
// Writes are keyed by the deterministic record key, so re-running a job
// overwrites its own rows instead of duplicating them.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/vidqa/ingestor/internal/ingesterrors"
	"github.com/vidqa/ingestor/internal/models"
)

// WriteReport describes the outcome of a batch upsert. Failed maps record
// keys to their individual errors so a caller can retry only those records.
type WriteReport struct {
	Succeeded int
	Failed    map[string]error
}

// AllSucceeded reports whether every record in the batch was written.
func (r *WriteReport) AllSucceeded() bool {
	return len(r.Failed) == 0
}

// CollectionStats summarizes what a collection currently holds.
type CollectionStats struct {
	CollectionID string
	Videos       int64
	Records      int64
	ByModel      map[string]int64
}

// Repository handles data access for the vector_records table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new vector records repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const upsertSQL = `
	INSERT INTO vector_records
		(record_key, collection_id, video_id, chunk_index, start_seconds, end_seconds, excerpt, model, embedding, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	ON CONFLICT (record_key)
	DO UPDATE SET
		collection_id = EXCLUDED.collection_id,
		video_id = EXCLUDED.video_id,
		chunk_index = EXCLUDED.chunk_index,
		start_seconds = EXCLUDED.start_seconds,
		end_seconds = EXCLUDED.end_seconds,
		excerpt = EXCLUDED.excerpt,
		model = EXCLUDED.model,
		embedding = EXCLUDED.embedding,
		updated_at = EXCLUDED.updated_at`

// UpsertBatch writes records in one pipelined batch. When the batch fails,
// records are retried one by one to attribute errors to individual keys;
// rejections the database will never accept (bad data, constraint, schema
// mismatch) are reported as WriteRejectedError per key.
func (r *Repository) UpsertBatch(ctx context.Context, records []models.VectorRecord) (*WriteReport, error) {
	report := &WriteReport{Failed: make(map[string]error)}
	if len(records) == 0 {
		return report, nil
	}

	batch := &pgx.Batch{}
	for i := range records {
		batch.Queue(upsertSQL, upsertArgs(&records[i])...)
	}

	if err := r.sendBatch(ctx, batch, len(records)); err == nil {
		report.Succeeded = len(records)

		return report, nil
	}

	// A failed statement aborts the rest of the pipeline, so the batch
	// result cannot say which records are at fault. Replay individually.
	for i := range records {
		rec := &records[i]

		_, err := r.db.Exec(ctx, upsertSQL, upsertArgs(rec)...)
		if err != nil {
			report.Failed[rec.Key] = classifyWriteError(rec.Key, err)

			continue
		}

		report.Succeeded++
	}

	return report, nil
}

func (r *Repository) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	results := r.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range n {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}

func upsertArgs(rec *models.VectorRecord) []any {
	now := rec.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}

	return []any{
		rec.Key, rec.CollectionID, rec.VideoID, rec.ChunkIndex,
		rec.Start, rec.End, rec.Excerpt, rec.Model,
		pgvector.NewHalfVector(rec.Embedding), now,
	}
}

// classifyWriteError turns schema-level rejections into permanent
// WriteRejectedError; anything else stays transient.
func classifyWriteError(key string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "22", "23", "42":
			return ingesterrors.NewWriteRejectedError(key, pgErr.Message)
		}
	}

	return fmt.Errorf("vector record upsert %s: %w", key, err)
}

// DeleteByVideo removes every record a previous ingestion of the video wrote
// to the collection. Used before a re-ingest so a shorter transcript leaves
// no stale tail chunks behind.
func (r *Repository) DeleteByVideo(ctx context.Context, collectionID, videoID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM vector_records WHERE collection_id = $1 AND video_id = $2`,
		collectionID, videoID,
	)
	if err != nil {
		return 0, fmt.Errorf("vector records delete by video: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteByCollection removes every record in the collection.
func (r *Repository) DeleteByCollection(ctx context.Context, collectionID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM vector_records WHERE collection_id = $1`,
		collectionID,
	)
	if err != nil {
		return 0, fmt.Errorf("vector records delete by collection: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Stats returns record and video counts for the collection, broken down by
// embedding model.
func (r *Repository) Stats(ctx context.Context, collectionID string) (*CollectionStats, error) {
	stats := &CollectionStats{
		CollectionID: collectionID,
		ByModel:      make(map[string]int64),
	}

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT video_id)
		FROM vector_records WHERE collection_id = $1`,
		collectionID,
	).Scan(&stats.Records, &stats.Videos)
	if err != nil {
		return nil, fmt.Errorf("vector records stats: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT model, COUNT(*)
		FROM vector_records WHERE collection_id = $1
		GROUP BY model`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("vector records stats by model: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			model string
			count int64
		)

		if err := rows.Scan(&model, &count); err != nil {
			return nil, fmt.Errorf("scan model count: %w", err)
		}

		stats.ByModel[model] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating model counts: %w", err)
	}

	return stats, nil
}
