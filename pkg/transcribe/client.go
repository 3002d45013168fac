// Package transcribe is the client for the asynchronous speech-transcription
// service: submit an audio artifact, then poll the returned job handle until
// it reaches a terminal state.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// ClientOptions configures the transcription client.
type ClientOptions struct {
	// BaseURL is the service base URL (required).
	BaseURL string
	// APIKey authenticates requests when the service requires it.
	APIKey string
	// Language hints the recognition language (default: "en").
	Language string
	// RetryMax is the maximum number of transport-level retries (default: 3).
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the transport retry backoff.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Timeout is the HTTP client timeout (default: 60 seconds; uploads are large).
	Timeout time.Duration
}

// Client talks to the transcription service.
type Client struct {
	baseURL    string
	apiKey     string
	language   string
	httpClient *retryablehttp.Client
}

// NewClient creates a transcription client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("transcribe: base URL is required")
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.Language == "" {
		opts.Language = "en"
	}

	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
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

	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		language:   opts.Language,
		httpClient: retryClient,
	}, nil
}

// Submit uploads the audio file at audioPath and returns the created job.
// The upload carries a client reference id so the service can deduplicate a
// retried submit of the same attempt.
func (c *Client) Submit(ctx context.Context, audioPath string) (*Job, error) {
	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio artifact: %w", err)
	}
	defer func() {
		if err := audio.Close(); err != nil {
			slog.Error("failed to close audio artifact", "path", audioPath, "error", err)
		}
	}()

	reqURL := fmt.Sprintf("%s/v1/jobs?language=%s", c.baseURL, c.language)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, reqURL, audio)
	if err != nil {
		return nil, fmt.Errorf("create submit request: %w", err)
	}

	c.setAuth(req)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Client-Reference", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit transcription job: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcription submit failed with status %d: %s", resp.StatusCode, readErrorBody(resp))
	}

	var submitted submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return nil, fmt.Errorf("unmarshal submit response: %w", err)
	}

	if submitted.Job.ID == "" {
		return nil, fmt.Errorf("transcription submit returned no job id")
	}

	return &submitted.Job, nil
}

// GetJob fetches the current state of a transcription job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("transcribe: job id is required")
	}

	reqURL := fmt.Sprintf("%s/v1/jobs/%s", c.baseURL, jobID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create poll request: %w", err)
	}

	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll transcription job: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcription poll failed with status %d: %s", resp.StatusCode, readErrorBody(resp))
	}

	var polled jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&polled); err != nil {
		return nil, fmt.Errorf("unmarshal poll response: %w", err)
	}

	return &polled.Job, nil
}

// setAuth attaches the API key header when configured.
func (c *Client) setAuth(req *retryablehttp.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// closeBody closes the response body, logging rather than dropping the error.
func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Error("failed to close transcription response body", "error", err)
	}
}

// readErrorBody reads a bounded error body for messages.
func readErrorBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		slog.Error("failed to read transcription error body", "error", err)

		return ""
	}

	return string(body)
}
