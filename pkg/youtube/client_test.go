package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidqa/ingestor/internal/ingesterrors"
)

const sampleTrack = `{
	"events": [
		{"tStartMs": 0, "dDurationMs": 2500, "segs": [{"utf8": "hello "}, {"utf8": "there"}]},
		{"tStartMs": 2500, "dDurationMs": 1000},
		{"tStartMs": 3500, "dDurationMs": 2000, "segs": [{"utf8": "\n"}]},
		{"tStartMs": 5500, "dDurationMs": 3000, "segs": [{"utf8": "general kenobi"}]}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClientWithOptions(ClientOptions{
		BaseURL:      server.URL,
		Language:     "en",
		Timeout:      2 * time.Second,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
}

func TestFetchTranscript_parsesSegmentsInOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/timedtext", r.URL.Path)
		assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("v"))
		assert.Equal(t, "en", r.URL.Query().Get("lang"))
		assert.Equal(t, "json3", r.URL.Query().Get("fmt"))

		_, _ = w.Write([]byte(sampleTrack))
	})

	segments, err := client.FetchTranscript(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)

	// Cues without text are dropped; times are in seconds.
	require.Len(t, segments, 2)
	assert.Equal(t, "hello there", segments[0].Text)
	assert.Equal(t, 0.0, segments[0].Start)
	assert.Equal(t, 2.5, segments[0].End)
	assert.Equal(t, "general kenobi", segments[1].Text)
	assert.Equal(t, 5.5, segments[1].Start)
	assert.Equal(t, 8.5, segments[1].End)
}

func TestFetchTranscript_emptyBodyMeansNoTranscript(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.FetchTranscript(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ingesterrors.ErrNoTranscript)
}

func TestFetchTranscript_notFoundMeansNoTranscript(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.FetchTranscript(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ingesterrors.ErrNoTranscript)
}

func TestFetchTranscript_emptyEventsMeansNoTranscript(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"events": []}`))
	})

	_, err := client.FetchTranscript(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ingesterrors.ErrNoTranscript)
}

func TestFetchTranscript_throttlingIsTypedAndNotRetriedByTransport(t *testing.T) {
	var calls int

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchTranscript(context.Background(), "dQw4w9WgXcQ")

	require.ErrorIs(t, err, ingesterrors.ErrRateLimited)
	assert.Equal(t, 1, calls, "429 must reach the caller, not be retried by the HTTP client")

	var rl *ingesterrors.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
	assert.Equal(t, ingesterrors.KindTransient, ingesterrors.Classify(err))
}

func TestFetchTranscript_serverErrorIsNotNoTranscript(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	})

	_, err := client.FetchTranscript(context.Background(), "dQw4w9WgXcQ")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ingesterrors.ErrNoTranscript)
	assert.Equal(t, ingesterrors.KindTransient, ingesterrors.Classify(err))
}
