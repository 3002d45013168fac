// Package tests holds integration tests that exercise the vector store
// against a real Postgres with the pgvector extension.
package tests

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/vidqa/ingestor/pkg/database"
)

const pgvectorImage = "pgvector/pgvector:pg16"

// startPostgres launches a throwaway Postgres with pgvector, applies the
// schema, and returns a ready pool. Skips the test when Docker is not
// available.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") != "" {
		t.Skip("SKIP_INTEGRATION set")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, pgvectorImage,
		postgres.WithDatabase("ingestor"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(poolCtx, connString, database.WithVectorTypes())
	require.NoError(t, err)

	t.Cleanup(pool.Close)

	applyMigrations(t, pool)

	return pool
}

func applyMigrations(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	schema, err := os.ReadFile(filepath.Join("..", "migrations", "001_vector_records.sql"))
	require.NoError(t, err)

	_, err = pool.Exec(context.Background(), string(schema))
	require.NoError(t, err)
}
