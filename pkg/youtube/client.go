// Package youtube fetches pre-existing transcripts from the video platform's
// timedtext endpoint and extracts video identifiers from submitted URLs.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/vidqa/ingestor/internal/ingesterrors"
	"github.com/vidqa/ingestor/internal/models"
)

// ClientOptions configures the transcript client.
type ClientOptions struct {
	// BaseURL is the platform base URL (default: "https://www.youtube.com").
	BaseURL string
	// Language is the caption track language code (default: "en").
	Language string
	// RetryMax is the maximum number of transport-level retries (default: 3).
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the transport retry backoff.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Timeout is the HTTP client timeout (default: 30 seconds).
	Timeout time.Duration
}

// Client fetches caption tracks.
type Client struct {
	baseURL    string
	language   string
	httpClient *retryablehttp.Client
}

// NewClient creates a transcript client with default settings.
func NewClient() *Client {
	return NewClientWithOptions(ClientOptions{})
}

// NewClientWithOptions creates a transcript client with custom options.
func NewClientWithOptions(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.youtube.com"
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.Language == "" {
		opts.Language = "en"
	}

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil

	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}

	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}
	// Throttling is surfaced to the caller as a typed signal; the
	// coordinator owns that backoff, not the transport.
	retryClient.CheckRetry = noRetryOn429

	return &Client{
		baseURL:    opts.BaseURL,
		language:   opts.Language,
		httpClient: retryClient,
	}
}

// noRetryOn429 is the default retry policy minus 429, which must reach the caller.
func noRetryOn429(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// FetchTranscript returns the ordered caption segments for videoID, with
// times normalized to seconds. Reports ingesterrors.ErrNoTranscript when the
// platform has no track and ingesterrors.ErrRateLimited when throttled.
func (c *Client) FetchTranscript(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", c.language)
	params.Set("fmt", "json3")

	reqURL := c.baseURL + "/api/timedtext?" + params.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create timedtext request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close timedtext response body", "error", err)
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to parsing
	case http.StatusNotFound:
		return nil, ingesterrors.NewNoTranscriptError(videoID)
	case http.StatusTooManyRequests:
		return nil, &ingesterrors.RateLimitedError{RetryAfter: retryAfter(resp)}
	default:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if readErr != nil {
			slog.Error("failed to read timedtext error body", "error", readErr)
		}

		return nil, fmt.Errorf("timedtext request failed with status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read timedtext body: %w", err)
	}

	// The endpoint answers an unknown or caption-less video with an empty
	// 200 body rather than a 404.
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ingesterrors.NewNoTranscriptError(videoID)
	}

	var track timedTextResponse
	if err := json.Unmarshal(body, &track); err != nil {
		return nil, fmt.Errorf("unmarshal timedtext: %w", err)
	}

	segments := segmentsFromEvents(track.Events)
	if len(segments) == 0 {
		return nil, ingesterrors.NewNoTranscriptError(videoID)
	}

	return segments, nil
}

// segmentsFromEvents flattens caption cues into ordered transcript segments,
// normalizing milliseconds to seconds and dropping empty cues.
func segmentsFromEvents(events []timedTextEvent) []models.TranscriptSegment {
	var segments []models.TranscriptSegment

	for _, ev := range events {
		var b strings.Builder
		for _, seg := range ev.Segs {
			b.WriteString(seg.UTF8)
		}

		text := strings.Join(strings.Fields(b.String()), " ")
		if text == "" {
			continue
		}

		start := float64(ev.StartMs) / 1000
		segments = append(segments, models.TranscriptSegment{
			Start: start,
			End:   start + float64(ev.DurationMs)/1000,
			Text:  text,
		})
	}

	return segments
}

// retryAfter parses the Retry-After header when the platform provides one.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}

	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
