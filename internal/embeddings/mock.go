package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vidqa/ingestor/pkg/vectormath"
)

// MockClient implements Client for tests, deriving a deterministic normalized
// vector from the input text hash: identical text always yields the identical
// vector, matching the purity contract of the real embedder.
type MockClient struct {
	model      string
	dimensions int
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a mock with the default model identity and 1536 dimensions.
func NewMockClient() *MockClient {
	return &MockClient{model: "mock-embedding", dimensions: defaultDimensions}
}

// NewMockClientWithDimensions creates a mock with a custom dimension count.
func NewMockClientWithDimensions(dimensions int) *MockClient {
	return &MockClient{model: "mock-embedding", dimensions: dimensions}
}

// Model returns the mock model identity.
func (c *MockClient) Model() string { return c.model }

// Dimensions returns the configured vector length.
func (c *MockClient) Dimensions() int { return c.dimensions }

// Embed returns a deterministic vector for text.
func (c *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	return c.deterministicVector(text), nil
}

// EmbedBatch returns deterministic vectors for all texts.
func (c *MockClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	vectors := make([][]float32, len(texts))

	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("input %d: %w", i, ErrEmptyInput)
		}

		vectors[i] = c.deterministicVector(text)
	}

	return vectors, nil
}

// deterministicVector expands the SHA-256 of text into a unit-length vector.
func (c *MockClient) deterministicVector(text string) []float32 {
	vec := make([]float32, c.dimensions)
	seed := sha256.Sum256([]byte(text))

	for i := range vec {
		block := sha256.Sum256(append(seed[:], byte(i), byte(i>>8)))
		bits := binary.BigEndian.Uint32(block[:4])
		vec[i] = float32(bits)/float32(math.MaxUint32)*2 - 1
	}

	vectormath.NormalizeL2(vec)

	return vec
}
