package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
//
// EmbedText and EmbedTexts must produce identical vectors for identical input:
// documents are embedded in batches at ingestion time and queries one at a
// time, and retrieval quality depends on both paths agreeing.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed width of produced vectors.
	Dimension() int

	// Model identifies the embedding model. Persisted indexes record it so a
	// load can reject vectors produced by a different model.
	Model() string
}

// Generator invokes a language-model backend with a fully rendered prompt.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate returns the backend's answer text for prompt.
	// Transport, authentication and timeout failures wrap core.ErrBackendUnavailable.
	Generate(ctx context.Context, prompt string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the answer backend.
	// The returned Generator is safe for concurrent use.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
