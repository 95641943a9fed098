package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const probeText = "dimension probe"

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
// Vectors are normalized to unit length on both the single and batch paths.
type Embedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(ctx context.Context, config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token
	token := config.EmbeddingAPIKey
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrModelUnavailable, err)
	}

	return newEmbedderWithClient(ctx, client, config.EmbeddingModel)
}

// newEmbedderWithClient wraps any langchaingo embedding client and probes it
// once to learn the vector dimension.
func newEmbedderWithClient(ctx context.Context, client embeddings.EmbedderClient, model string) (*Embedder, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrModelUnavailable, err)
	}

	e := &Embedder{
		embedder: embedder,
		model:    model,
		logger:   slog.Default().With("component", "openai-embedder"),
	}

	probe, err := embedder.EmbedDocuments(ctx, []string{probeText})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding probe failed: %w", core.ErrModelUnavailable, err)
	}
	if len(probe) != 1 || len(probe[0]) == 0 {
		return nil, fmt.Errorf("%w: embedding probe returned no vector", core.ErrModelUnavailable)
	}
	e.dimension = len(probe[0])
	e.logger.Debug("embedding model ready", "model", model, "dimension", e.dimension)

	return e, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
// The service is contacted once to determine the vector dimension; failure
// returns core.ErrModelUnavailable.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(ctx context.Context, config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(ctx, config)
}

// EmbedText generates a vector embedding for a single text string.
// It goes through EmbedTexts so both call paths share one implementation.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	// The langchaingo embedder rewrites its input slice when stripping newlines
	input := make([]string, len(texts))
	copy(input, texts)

	vectors, err := e.embedder.EmbedDocuments(ctx, input)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vectors))
	}

	for i, v := range vectors {
		if err := core.ValidateVector(v, e.dimension); err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
		vectors[i] = ai.NormalizeVector(v)
	}
	return vectors, nil
}

// Dimension returns the vector width reported by the service.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string {
	return e.model
}
