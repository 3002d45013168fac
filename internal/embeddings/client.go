// Package embeddings converts chunk text into fixed-dimension vectors.
package embeddings

import "context"

// Client generates embedding vectors. Implementations must be pure with
// respect to the vector produced for identical text under a fixed model
// identity.
type Client interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order. All
	// chunks of one video go through a single batch call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the model identity recorded alongside each vector, so
	// re-embedding with a different model is detectable.
	Model() string

	// Dimensions returns the fixed vector length for this configuration.
	Dimensions() int
}
