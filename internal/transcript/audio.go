package transcript

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/vidqa/ingestor/internal/ingesterrors"
)

// AudioResolver obtains a video's audio track as a local temporary file.
// The returned cleanup must be called regardless of what happens to the
// artifact afterwards.
type AudioResolver interface {
	DownloadAudio(ctx context.Context, videoID string) (path string, cleanup func(), err error)
}

// HTTPAudioResolver downloads audio from the media resolver sidecar, which
// extracts the audio track of a video on demand.
type HTTPAudioResolver struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// HTTPAudioResolverOptions configures the resolver client.
type HTTPAudioResolverOptions struct {
	// BaseURL is the resolver endpoint (required).
	BaseURL string
	// RetryMax is the maximum number of transport-level retries (default: 2).
	RetryMax int
	// Timeout bounds one download (default: 5 minutes; audio tracks are large).
	Timeout time.Duration
}

// NewHTTPAudioResolver creates a resolver client.
func NewHTTPAudioResolver(opts HTTPAudioResolverOptions) (*HTTPAudioResolver, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("audio resolver: base URL is required")
	}

	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 2
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil

	return &HTTPAudioResolver{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: retryClient,
	}, nil
}

// DownloadAudio streams the audio track to a temp file and returns its path
// with a cleanup that removes the artifact. On error the partial file is
// removed before returning.
func (r *HTTPAudioResolver) DownloadAudio(ctx context.Context, videoID string) (string, func(), error) {
	reqURL := fmt.Sprintf("%s/v1/audio/%s", r.baseURL, videoID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("create audio request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("download audio: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close audio response body", "video_id", videoID, "error", err)
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to streaming
	case http.StatusNotFound:
		return "", nil, ingesterrors.Permanent(fmt.Errorf("audio resolver has no media for video %s", videoID))
	default:
		return "", nil, fmt.Errorf("audio download failed with status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "ingest-audio-"+videoID+"-*.m4a")
	if err != nil {
		return "", nil, fmt.Errorf("create audio temp file: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			slog.Error("failed to remove audio artifact", "path", tmp.Name(), "error", err)
		}
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		cleanup()

		return "", nil, fmt.Errorf("stream audio to temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		cleanup()

		return "", nil, fmt.Errorf("close audio temp file: %w", err)
	}

	return tmp.Name(), cleanup, nil
}
