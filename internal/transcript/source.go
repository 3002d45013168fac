// Package transcript acquires time-aligned transcript segments for a video:
// a primary caption source, and an audio-transcription fallback for videos
// the platform has no transcript for.
package transcript

import (
	"context"
	"log/slog"
	"time"

	"github.com/vidqa/ingestor/internal/models"
	"github.com/vidqa/ingestor/pkg/cache"
)

// Source fetches a pre-existing transcript from the video platform.
// Implementations report ingesterrors.ErrNoTranscript and
// ingesterrors.ErrRateLimited as typed signals.
type Source interface {
	FetchTranscript(ctx context.Context, videoID string) ([]models.TranscriptSegment, error)
}

// CachingSource wraps a Source with a TTL cache plus request coalescing, so
// stage retries and concurrent jobs for the same video hit the platform once.
type CachingSource struct {
	inner Source
	cache *cache.TTLLoader[[]models.TranscriptSegment]
}

// NewCachingSource wraps inner with a cache of maxEntries transcripts,
// each kept for ttl.
func NewCachingSource(inner Source, maxEntries int, ttl time.Duration) *CachingSource {
	return &CachingSource{
		inner: inner,
		cache: cache.NewTTLLoader[[]models.TranscriptSegment](maxEntries, ttl),
	}
}

// FetchTranscript returns cached segments when present; typed failures
// (no transcript, rate limited) pass through uncached.
func (s *CachingSource) FetchTranscript(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	segments, hit, err := s.cache.Get(ctx, videoID, func(ctx context.Context, id string) ([]models.TranscriptSegment, error) {
		return s.inner.FetchTranscript(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	if hit {
		slog.Debug("transcript served from cache", "video_id", videoID, "segments", len(segments))
	}

	return segments, nil
}
