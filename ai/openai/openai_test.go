package openai

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
)

// lengthClient returns [len(text), 1, 0] for every text.
func lengthClient(calls *int) embeddings.EmbedderClientFunc {
	return func(_ context.Context, texts []string) ([][]float32, error) {
		*calls++
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text)), 1, 0}
		}
		return out, nil
	}
}

func TestEmbedder_ProbeLearnsDimension(t *testing.T) {
	calls := 0
	e, err := newEmbedderWithClient(context.Background(), lengthClient(&calls), "test-embed")
	require.NoError(t, err)

	assert.Equal(t, 3, e.Dimension())
	assert.Equal(t, "test-embed", e.Model())
	assert.Equal(t, 1, calls)
}

func TestEmbedder_ProbeFailureIsModelUnavailable(t *testing.T) {
	client := embeddings.EmbedderClientFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	})
	_, err := newEmbedderWithClient(context.Background(), client, "test-embed")
	require.ErrorIs(t, err, core.ErrModelUnavailable)
}

func TestEmbedder_SingleAndBatchAgreeAndNormalize(t *testing.T) {
	ctx := context.Background()
	calls := 0
	e, err := newEmbedderWithClient(ctx, lengthClient(&calls), "test-embed")
	require.NoError(t, err)

	texts := []string{"risk\nfactors", "revenue growth"}
	batch, err := e.EmbedTexts(ctx, texts)
	require.NoError(t, err)
	single, err := e.EmbedText(ctx, "risk\nfactors")
	require.NoError(t, err)

	assert.Equal(t, batch[0], single)
	assert.Equal(t, "risk\nfactors", texts[0], "input slice must not be rewritten")

	var sum float64
	for _, v := range single {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestEmbedder_RejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	first := true
	client := embeddings.EmbedderClientFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			if first {
				out[i] = []float32{1, 0, 0}
			} else {
				out[i] = []float32{1, 0}
			}
		}
		first = false
		return out, nil
	})
	e, err := newEmbedderWithClient(ctx, client, "drifting")
	require.NoError(t, err)

	_, err = e.EmbedText(ctx, "anything")
	require.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestGenerator_ReturnsFirstChoice(t *testing.T) {
	g := NewGeneratorWithModel(fake.NewFakeLLM([]string{"  Revenue grew 12%.  "}), ai.DefaultConfig())

	answer, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 12%.", answer)
}

func TestGenerator_TransportErrorIsBackendUnavailable(t *testing.T) {
	g := NewGeneratorWithModel(fake.NewFakeLLM(nil), ai.DefaultConfig())

	_, err := g.Generate(context.Background(), "prompt")
	require.ErrorIs(t, err, core.ErrBackendUnavailable)
}

func TestGenerator_EmptyAnswerIsMalformed(t *testing.T) {
	g := NewGeneratorWithModel(fake.NewFakeLLM([]string{"   "}), ai.DefaultConfig())

	_, err := g.Generate(context.Background(), "prompt")
	require.ErrorIs(t, err, core.ErrMalformedResponse)
}

type noChoicesModel struct{}

func (noChoicesModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func (noChoicesModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", nil
}

func TestGenerator_NoChoicesIsMalformed(t *testing.T) {
	g := NewGeneratorWithModel(noChoicesModel{}, ai.DefaultConfig())

	_, err := g.Generate(context.Background(), "prompt")
	require.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestNewGenerator_WithoutKeyIsUnavailable(t *testing.T) {
	g, err := NewGenerator(ai.NewConfig())
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "prompt")
	require.ErrorIs(t, err, core.ErrBackendUnavailable)
	require.ErrorIs(t, err, ai.ErrMissingCredential)
	assert.True(t, strings.Contains(err.Error(), "API key"))
}

func TestNewGenerator_WithKeyBuildsClient(t *testing.T) {
	g, err := NewGenerator(ai.NewConfig(ai.WithBackendAPIKey("gsk-test")))
	require.NoError(t, err)
	_, ok := g.(*Generator)
	assert.True(t, ok)
}

func TestNewGenerator_InvalidConfig(t *testing.T) {
	_, err := NewGenerator(ai.NewConfig(ai.WithBackendModel("")))
	require.Error(t, err)
}

func TestNewUnavailableGenerator(t *testing.T) {
	g := NewUnavailableGenerator("maintenance window")
	_, err := g.Generate(context.Background(), "prompt")
	require.ErrorIs(t, err, core.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "maintenance window")
}
