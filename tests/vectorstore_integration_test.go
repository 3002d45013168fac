package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidqa/ingestor/internal/embeddings"
	"github.com/vidqa/ingestor/internal/models"
	"github.com/vidqa/ingestor/internal/vectorstore"
)

func makeRecords(t *testing.T, collectionID, videoID string, texts ...string) []models.VectorRecord {
	t.Helper()

	client := embeddings.NewMockClient()

	vectors, err := client.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	records := make([]models.VectorRecord, len(texts))
	for i, text := range texts {
		chunk := models.Chunk{
			Index:      i,
			Text:       text,
			Start:      float64(i * 10),
			End:        float64((i + 1) * 10),
			TokenCount: len(text),
		}
		records[i] = models.NewVectorRecord(collectionID, videoID, client.Model(), chunk, vectors[i])
	}

	return records
}

func TestVectorStore_UpsertRoundTrip(t *testing.T) {
	pool := startPostgres(t)
	repo := vectorstore.NewRepository(pool)
	ctx := context.Background()

	records := makeRecords(t, "col1", "ABC123xyz00", "first chunk", "second chunk", "third chunk")

	report, err := repo.UpsertBatch(ctx, records)
	require.NoError(t, err)
	assert.True(t, report.AllSucceeded())
	assert.Equal(t, 3, report.Succeeded)

	stats, err := repo.Stats(ctx, "col1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Records)
	assert.Equal(t, int64(1), stats.Videos)
	assert.Equal(t, int64(3), stats.ByModel[records[0].Model])
}

func TestVectorStore_ReingestOverwritesInPlace(t *testing.T) {
	pool := startPostgres(t)
	repo := vectorstore.NewRepository(pool)
	ctx := context.Background()

	first := makeRecords(t, "col1", "ABC123xyz00", "original one", "original two", "original three")
	report, err := repo.UpsertBatch(ctx, first)
	require.NoError(t, err)
	require.True(t, report.AllSucceeded())

	second := makeRecords(t, "col1", "ABC123xyz00", "revised one", "revised two", "revised three")
	report, err = repo.UpsertBatch(ctx, second)
	require.NoError(t, err)
	require.True(t, report.AllSucceeded())

	stats, err := repo.Stats(ctx, "col1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Records, "re-ingestion must overwrite, not duplicate")

	var excerpt string
	err = pool.QueryRow(ctx,
		`SELECT excerpt FROM vector_records WHERE record_key = $1`,
		models.RecordKey("col1", "ABC123xyz00", 0),
	).Scan(&excerpt)
	require.NoError(t, err)
	assert.Equal(t, "revised one", excerpt, "latest content wins per key")
}

func TestVectorStore_DeleteByVideoAndCollection(t *testing.T) {
	pool := startPostgres(t)
	repo := vectorstore.NewRepository(pool)
	ctx := context.Background()

	for _, video := range []string{"VIDAAAAAAA1", "VIDBBBBBBB2"} {
		records := makeRecords(t, "col1", video, "chunk a", "chunk b")
		report, err := repo.UpsertBatch(ctx, records)
		require.NoError(t, err)
		require.True(t, report.AllSucceeded())
	}

	deleted, err := repo.DeleteByVideo(ctx, "col1", "VIDAAAAAAA1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	stats, err := repo.Stats(ctx, "col1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Records)
	assert.Equal(t, int64(1), stats.Videos)

	deleted, err = repo.DeleteByCollection(ctx, "col1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	stats, err = repo.Stats(ctx, "col1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Records)
}
