// Package embedding defines the contract for text embedding models.
package embedding

import "context"

type Config struct {
	BaseURL   string `yaml:"baseURL"`
	APIKey    string `yaml:"apiKey"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// Embedder converts text to a fixed-length dense vector. Implementations
// must be deterministic for identical input within a single model version.
type Embedder interface {
	// Embed generates the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector dimensionality.
	Dimensions() int

	// Model returns the model identifier.
	Model() string
}
