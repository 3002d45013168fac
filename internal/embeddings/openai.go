package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/vidqa/ingestor/internal/ingesterrors"
)

var (
	// ErrEmptyInput is returned when embedding is requested for empty input.
	ErrEmptyInput = errors.New("embeddings: input text is empty")
	// ErrNoEmbeddingInResponse is returned when the API response contains fewer vectors than inputs.
	ErrNoEmbeddingInResponse = errors.New("embeddings: missing embedding in response")
)

const (
	defaultModel      = "text-embedding-3-small"
	defaultDimensions = 1536

	// maxInputBytes caps a single input well under the model's 8192-token
	// limit (tokens average 4 bytes). Chunk sizing keeps inputs far below
	// this by construction; the cap only catches chunker defects.
	maxInputBytes = 30000
)

// OpenAIClient implements Client using the official OpenAI SDK.
type OpenAIClient struct {
	sdk        openaisdk.Client
	sdkOpts    []option.RequestOption
	model      string
	dimensions int
}

var _ Client = (*OpenAIClient)(nil)

// OpenAIOption configures the OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithModel sets the embedding model identifier.
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithDimensions sets the requested vector dimension (must match the index column).
func WithDimensions(dim int) OpenAIOption {
	return func(c *OpenAIClient) {
		if dim > 0 {
			c.dimensions = dim
		}
	}
}

// WithBaseURL points the SDK at a different endpoint (tests, proxies).
func WithBaseURL(baseURL string) OpenAIOption {
	return func(c *OpenAIClient) {
		if baseURL != "" {
			c.sdk = openaisdk.NewClient(append(c.sdkOpts, option.WithBaseURL(baseURL))...)
		}
	}
}

// NewOpenAIClient creates an embeddings client for the given API key.
// Defaults to text-embedding-3-small at 1536 dimensions.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	client := &OpenAIClient{
		model:      defaultModel,
		dimensions: defaultDimensions,
	}
	client.sdkOpts = []option.RequestOption{option.WithAPIKey(apiKey)}
	client.sdk = openaisdk.NewClient(client.sdkOpts...)

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string { return c.model }

// Dimensions returns the configured vector length.
func (c *OpenAIClient) Dimensions() int { return c.dimensions }

// Embed returns the embedding for a single text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// EmbedBatch embeds all texts in one API call and returns vectors in input
// order. Inputs over the model's length cap fail as EmbeddingRejected without
// calling the service.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("input %d: %w", i, ErrEmptyInput)
		}

		if len(text) > maxInputBytes {
			return nil, ingesterrors.NewEmbeddingRejectedError(
				fmt.Sprintf("input %d is %d bytes, over the %d byte model cap", i, len(text), maxInputBytes))
		}
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:      openaisdk.EmbeddingModel(c.model),
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, classifyAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrNoEmbeddingInResponse, len(resp.Data), len(texts))
	}

	// The API may return data out of order; place each vector by its index.
	vectors := make([][]float32, len(texts))

	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(vectors) {
			return nil, fmt.Errorf("%w: response index %d out of range", ErrNoEmbeddingInResponse, idx)
		}

		if len(data.Embedding) != c.dimensions {
			return nil, ingesterrors.NewEmbeddingRejectedError(
				fmt.Sprintf("dimension mismatch: got %d, want %d", len(data.Embedding), c.dimensions))
		}

		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}

		vectors[idx] = vec
	}

	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("%w: no vector for input %d", ErrNoEmbeddingInResponse, i)
		}
	}

	return vectors, nil
}

// classifyAPIError maps SDK errors onto the failure taxonomy: client-side
// rejections (4xx other than 429) are permanent, everything else is the
// retryable "service unavailable" class.
func classifyAPIError(err error) error {
	var apierr *openaisdk.Error
	if errors.As(err, &apierr) {
		code := apierr.StatusCode
		if code >= http.StatusBadRequest && code < http.StatusInternalServerError &&
			code != http.StatusTooManyRequests {
			return ingesterrors.NewEmbeddingRejectedError(err.Error())
		}
	}

	return ingesterrors.Transient(fmt.Errorf("embedding service unavailable: %w", err))
}
