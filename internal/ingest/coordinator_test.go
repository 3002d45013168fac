package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidqa/ingestor/internal/chunker"
	"github.com/vidqa/ingestor/internal/embeddings"
	"github.com/vidqa/ingestor/internal/ingesterrors"
	"github.com/vidqa/ingestor/internal/models"
	"github.com/vidqa/ingestor/internal/vectorstore"
)

type sourceResult struct {
	segments []models.TranscriptSegment
	err      error
}

// scriptedSource returns its scripted results in order, repeating the last
// one when calls outrun the script.
type scriptedSource struct {
	results []sourceResult
	calls   int
}

func (s *scriptedSource) FetchTranscript(_ context.Context, _ string) ([]models.TranscriptSegment, error) {
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}

	s.calls++
	res := s.results[idx]

	return res.segments, res.err
}

type scriptedFallback struct {
	segments []models.TranscriptSegment
	err      error
	calls    int
}

func (f *scriptedFallback) Transcribe(_ context.Context, _ string) ([]models.TranscriptSegment, error) {
	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	return f.segments, nil
}

// scriptedEmbedder fails with the scripted errors first, then delegates to
// the deterministic mock client.
type scriptedEmbedder struct {
	*embeddings.MockClient
	errs  []error
	calls int
}

func (e *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++

	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]

		return nil, err
	}

	return e.MockClient.EmbedBatch(ctx, texts)
}

// scriptedWriter records every batch it receives and answers with scripted
// reports, succeeding once the script runs out.
type scriptedWriter struct {
	batches [][]models.VectorRecord
	reports []*vectorstore.WriteReport
}

func (w *scriptedWriter) UpsertBatch(_ context.Context, records []models.VectorRecord) (*vectorstore.WriteReport, error) {
	batch := make([]models.VectorRecord, len(records))
	copy(batch, records)
	w.batches = append(w.batches, batch)

	if len(w.reports) > 0 {
		report := w.reports[0]
		w.reports = w.reports[1:]

		return report, nil
	}

	return &vectorstore.WriteReport{Succeeded: len(records)}, nil
}

// transcript2500 builds 25 segments of 100 words each, 2500 word-tokens in
// total.
func transcript2500() []models.TranscriptSegment {
	segments := make([]models.TranscriptSegment, 25)

	word := 0
	for i := range segments {
		text := ""
		for range 100 {
			if text != "" {
				text += " "
			}

			text += fmt.Sprintf("w%d", word)
			word++
		}

		segments[i] = models.TranscriptSegment{
			Start: float64(i * 10),
			End:   float64((i + 1) * 10),
			Text:  text,
		}
	}

	return segments
}

type coordinatorFixture struct {
	source   *scriptedSource
	fallback *scriptedFallback
	embedder *scriptedEmbedder
	writer   *scriptedWriter
}

func newCoordinatorForTest(t *testing.T, fix *coordinatorFixture) *Coordinator {
	t.Helper()

	ch, err := chunker.New(chunker.WordTokenizer{}, 1000, 200)
	require.NoError(t, err)

	if fix.embedder == nil {
		fix.embedder = &scriptedEmbedder{MockClient: embeddings.NewMockClient()}
	}

	if fix.writer == nil {
		fix.writer = &scriptedWriter{}
	}

	coord, err := NewCoordinator(Options{
		Source:   fix.source,
		Fallback: fix.fallback,
		Chunker:  ch,
		Embedder: fix.embedder,
		Writer:   fix.writer,
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
		Timeouts: StageTimeouts{
			Acquire:    time.Second,
			Transcribe: time.Second,
			Embed:      time.Second,
			Write:      time.Second,
		},
	})
	require.NoError(t, err)

	return coord
}

func newJob() *models.IngestionJob {
	return &models.IngestionJob{
		VideoID:      "ABC123xyz00",
		CollectionID: "col1",
		SourceURL:    "https://www.youtube.com/watch?v=ABC123xyz00",
		Status:       models.StatusReceived,
		AttemptCount: 1,
	}
}

func TestNewCoordinator_Validation(t *testing.T) {
	ch, err := chunker.New(chunker.WordTokenizer{}, 1000, 200)
	require.NoError(t, err)

	_, err = NewCoordinator(Options{Chunker: ch})
	assert.Error(t, err)

	_, err = NewCoordinator(Options{
		Source:   &scriptedSource{},
		Fallback: &scriptedFallback{},
		Chunker:  ch,
		Embedder: embeddings.NewMockClient(),
		Writer:   &scriptedWriter{},
		Retry:    RetryPolicy{},
		Timeouts: DefaultStageTimeouts(),
	})
	assert.Error(t, err, "zero retry policy must be rejected")
}

func TestRun_PrimaryTranscriptEndToEnd(t *testing.T) {
	fix := &coordinatorFixture{
		source:   &scriptedSource{results: []sourceResult{{segments: transcript2500()}}},
		fallback: &scriptedFallback{},
	}
	coord := newCoordinatorForTest(t, fix)

	job := newJob()
	require.NoError(t, coord.Run(context.Background(), job))

	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, 0, fix.fallback.calls, "fallback must not run when the primary source succeeds")

	require.Len(t, fix.writer.batches, 1)
	records := fix.writer.batches[0]
	require.Len(t, records, 3)

	for i, rec := range records {
		assert.Equal(t, models.RecordKey("col1", "ABC123xyz00", i), rec.Key)
		assert.Equal(t, i, rec.ChunkIndex)
		assert.Equal(t, "col1", rec.CollectionID)
		assert.Equal(t, "ABC123xyz00", rec.VideoID)
		assert.Len(t, rec.Embedding, fix.embedder.Dimensions())
		assert.Equal(t, fix.embedder.Model(), rec.Model)
	}
}

func TestRun_FallbackInvokedExactlyOnce(t *testing.T) {
	fix := &coordinatorFixture{
		source: &scriptedSource{results: []sourceResult{
			{err: ingesterrors.NewNoTranscriptError("ABC123xyz00")},
		}},
		fallback: &scriptedFallback{segments: transcript2500()},
	}
	coord := newCoordinatorForTest(t, fix)

	job := newJob()
	require.NoError(t, coord.Run(context.Background(), job))

	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, 1, fix.source.calls, "missing transcript must not be retried against the primary source")
	assert.Equal(t, 1, fix.fallback.calls)
	assert.Len(t, fix.writer.batches, 1)
}

func TestRun_RateLimitedPrimaryRetriesWithoutFallback(t *testing.T) {
	fix := &coordinatorFixture{
		source: &scriptedSource{results: []sourceResult{
			{err: &ingesterrors.RateLimitedError{RetryAfter: time.Millisecond}},
			{segments: transcript2500()},
		}},
		fallback: &scriptedFallback{},
	}
	coord := newCoordinatorForTest(t, fix)

	job := newJob()
	require.NoError(t, coord.Run(context.Background(), job))

	assert.Equal(t, 2, fix.source.calls)
	assert.Equal(t, 0, fix.fallback.calls, "rate limiting is not a missing transcript")
}

func TestRun_TransientEmbeddingFailureThenSuccess(t *testing.T) {
	fix := &coordinatorFixture{
		source:   &scriptedSource{results: []sourceResult{{segments: transcript2500()}}},
		fallback: &scriptedFallback{},
		embedder: &scriptedEmbedder{
			MockClient: embeddings.NewMockClient(),
			errs:       []error{ingesterrors.Transient(errors.New("embedding service unavailable"))},
		},
	}
	coord := newCoordinatorForTest(t, fix)

	job := newJob()
	require.NoError(t, coord.Run(context.Background(), job))

	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, 2, fix.embedder.calls)
	require.Len(t, fix.writer.batches, 1, "retry must not duplicate the write")
	assert.Len(t, fix.writer.batches[0], 3)
}

func TestRun_PermanentEmbeddingFailureSkipsWrite(t *testing.T) {
	fix := &coordinatorFixture{
		source:   &scriptedSource{results: []sourceResult{{segments: transcript2500()}}},
		fallback: &scriptedFallback{},
		embedder: &scriptedEmbedder{
			MockClient: embeddings.NewMockClient(),
			errs: []error{
				ingesterrors.NewEmbeddingRejectedError("input too long"),
				ingesterrors.NewEmbeddingRejectedError("input too long"),
			},
		},
	}
	coord := newCoordinatorForTest(t, fix)

	job := newJob()
	err := coord.Run(context.Background(), job)

	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, ingesterrors.KindPermanent, ingesterrors.Classify(err))
	assert.Equal(t, 1, fix.embedder.calls, "permanent failures must not be retried in-stage")
	assert.Empty(t, fix.writer.batches)
}

func TestRun_PartialWriteRetriesOnlyFailedKeys(t *testing.T) {
	failedKey := models.RecordKey("col1", "ABC123xyz00", 1)

	fix := &coordinatorFixture{
		source:   &scriptedSource{results: []sourceResult{{segments: transcript2500()}}},
		fallback: &scriptedFallback{},
		writer: &scriptedWriter{reports: []*vectorstore.WriteReport{
			{
				Succeeded: 2,
				Failed: map[string]error{
					failedKey: ingesterrors.Transient(errors.New("index shard unavailable")),
				},
			},
		}},
	}
	coord := newCoordinatorForTest(t, fix)

	job := newJob()
	require.NoError(t, coord.Run(context.Background(), job))

	require.Len(t, fix.writer.batches, 2)
	assert.Len(t, fix.writer.batches[0], 3)
	require.Len(t, fix.writer.batches[1], 1, "only the failed key goes back out")
	assert.Equal(t, failedKey, fix.writer.batches[1][0].Key)
}

func TestRun_PermanentWriteRejectionFailsJob(t *testing.T) {
	rejectedKey := models.RecordKey("col1", "ABC123xyz00", 2)

	fix := &coordinatorFixture{
		source:   &scriptedSource{results: []sourceResult{{segments: transcript2500()}}},
		fallback: &scriptedFallback{},
		writer: &scriptedWriter{reports: []*vectorstore.WriteReport{
			{
				Succeeded: 2,
				Failed: map[string]error{
					rejectedKey: ingesterrors.NewWriteRejectedError(rejectedKey, "dimension mismatch"),
				},
			},
		}},
	}
	coord := newCoordinatorForTest(t, fix)

	job := newJob()
	err := coord.Run(context.Background(), job)

	require.Error(t, err)
	assert.Equal(t, ingesterrors.KindPermanent, ingesterrors.Classify(err))
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Len(t, fix.writer.batches, 1)
}

func TestRun_TranscriptionTimeoutIsTransient(t *testing.T) {
	fix := &coordinatorFixture{
		source: &scriptedSource{results: []sourceResult{
			{err: ingesterrors.NewNoTranscriptError("ABC123xyz00")},
		}},
		fallback: &scriptedFallback{
			err: &ingesterrors.TranscriptionTimeoutError{JobID: "job-1", Elapsed: time.Minute},
		},
	}
	coord := newCoordinatorForTest(t, fix)

	job := newJob()
	err := coord.Run(context.Background(), job)

	require.Error(t, err)
	assert.Equal(t, ingesterrors.KindTransient, ingesterrors.Classify(err))
	assert.Equal(t, 1, fix.fallback.calls, "one fallback invocation per job attempt")
	assert.Equal(t, models.StatusFailed, job.Status)
}

func TestRun_EmptyTranscriptIsPermanent(t *testing.T) {
	fix := &coordinatorFixture{
		source:   &scriptedSource{results: []sourceResult{{segments: nil}}},
		fallback: &scriptedFallback{},
	}
	coord := newCoordinatorForTest(t, fix)

	job := newJob()
	err := coord.Run(context.Background(), job)

	require.Error(t, err)
	assert.Equal(t, ingesterrors.KindPermanent, ingesterrors.Classify(err))
}

func TestRun_TransientExhaustionFailsJobTransient(t *testing.T) {
	fix := &coordinatorFixture{
		source: &scriptedSource{results: []sourceResult{
			{err: ingesterrors.Transient(errors.New("upstream 503"))},
		}},
		fallback: &scriptedFallback{},
	}
	coord := newCoordinatorForTest(t, fix)

	job := newJob()
	err := coord.Run(context.Background(), job)

	require.Error(t, err)
	assert.Equal(t, ingesterrors.KindTransient, ingesterrors.Classify(err))
	assert.Equal(t, 3, fix.source.calls, "stage retries are bounded by the policy")
	assert.Equal(t, 0, fix.fallback.calls)
}

func TestRetryStage_JitterStaysWithinBounds(t *testing.T) {
	for range 100 {
		d := jittered(10 * time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 10*time.Millisecond)
	}
}
