package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vidqa/ingestor/internal/ingesterrors"
	"github.com/vidqa/ingestor/internal/models"
	"github.com/vidqa/ingestor/pkg/transcribe"
)

// TranscriptionService is the slice of the transcribe client the fallback needs.
type TranscriptionService interface {
	Submit(ctx context.Context, audioPath string) (*transcribe.Job, error)
	GetJob(ctx context.Context, jobID string) (*transcribe.Job, error)
}

// PollConfig bounds the transcription wait: exponential backoff between
// polls from Initial up to Max, with Deadline as the hard ceiling on the
// whole wait.
type PollConfig struct {
	Initial  time.Duration
	Max      time.Duration
	Deadline time.Duration
}

// DefaultPollConfig suits typical speech-to-text turnaround for long videos.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Initial:  2 * time.Second,
		Max:      30 * time.Second,
		Deadline: 15 * time.Minute,
	}
}

// AudioTranscriber is the fallback acquisition path: download the audio
// track, submit it for asynchronous transcription, poll to completion. The
// temporary audio artifact is always removed, whatever the outcome.
type AudioTranscriber struct {
	resolver AudioResolver
	service  TranscriptionService
	poll     PollConfig
}

// NewAudioTranscriber creates the fallback transcriber.
func NewAudioTranscriber(resolver AudioResolver, service TranscriptionService, poll PollConfig) (*AudioTranscriber, error) {
	if resolver == nil {
		return nil, fmt.Errorf("transcript: audio resolver is required")
	}

	if service == nil {
		return nil, fmt.Errorf("transcript: transcription service is required")
	}

	if poll.Initial <= 0 || poll.Max < poll.Initial || poll.Deadline <= 0 {
		return nil, fmt.Errorf("transcript: invalid poll config %+v", poll)
	}

	return &AudioTranscriber{resolver: resolver, service: service, poll: poll}, nil
}

// Transcribe runs the full fallback path for videoID and returns normalized,
// time-ordered segments.
func (t *AudioTranscriber) Transcribe(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	audioPath, cleanup, err := t.resolver.DownloadAudio(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("download audio for %s: %w", videoID, err)
	}
	defer cleanup()

	job, err := t.service.Submit(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("submit transcription for %s: %w", videoID, err)
	}

	slog.Info("transcription job submitted",
		"video_id", videoID,
		"transcription_job_id", job.ID,
	)

	final, err := t.waitForCompletion(ctx, job)
	if err != nil {
		return nil, err
	}

	if final.State == transcribe.StateFailed {
		return nil, ingesterrors.Permanent(
			fmt.Errorf("transcription job %s failed: %s", final.ID, final.Error))
	}

	segments := normalizeSegments(final.Segments)
	if len(segments) == 0 {
		return nil, ingesterrors.Permanent(
			fmt.Errorf("transcription job %s completed with no speech", final.ID))
	}

	return segments, nil
}

// waitForCompletion polls the job until a terminal state, backing off
// exponentially between polls and giving up at the configured deadline.
func (t *AudioTranscriber) waitForCompletion(ctx context.Context, job *transcribe.Job) (*transcribe.Job, error) {
	if job.State.Terminal() {
		return job, nil
	}

	start := time.Now()
	deadline := start.Add(t.poll.Deadline)
	backoff := t.poll.Initial

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &ingesterrors.TranscriptionTimeoutError{
				JobID:   job.ID,
				Elapsed: time.Since(start),
			}
		}

		wait := backoff
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-timer.C:
		}

		polled, err := t.service.GetJob(ctx, job.ID)
		if err != nil {
			// A failed poll is not a failed job; keep waiting until
			// the deadline decides.
			slog.Warn("transcription poll failed",
				"transcription_job_id", job.ID,
				"error", err,
			)
		} else if polled.State.Terminal() {
			return polled, nil
		}

		backoff = min(backoff*2, t.poll.Max)
	}
}

// normalizeSegments converts service segments to the transcript model,
// dropping empty ones and enforcing time order.
func normalizeSegments(in []transcribe.Segment) []models.TranscriptSegment {
	segments := make([]models.TranscriptSegment, 0, len(in))

	for _, seg := range in {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		segments = append(segments, models.TranscriptSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	return segments
}
