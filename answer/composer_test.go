package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/ai/mock"
	"github.com/poiesic/dossier/ai/openai"
	"github.com/poiesic/dossier/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestComposer(t *testing.T, gen ai.Generator, opts ...Option) *Composer {
	t.Helper()
	opts = append([]Option{WithRetryDelay(0)}, opts...)
	c, err := NewComposer(gen, opts...)
	require.NoError(t, err)
	return c
}

func TestNewComposer(t *testing.T) {
	t.Run("nil generator", func(t *testing.T) {
		_, err := NewComposer(nil)
		assert.Equal(t, ErrGeneratorRequired, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		gen := mock.NewMockGenerator()
		_, err := NewComposer(gen, WithMaxContextChars(0))
		require.Error(t, err)
		_, err = NewComposer(gen, WithTimeout(0))
		require.Error(t, err)
		_, err = NewComposer(gen, WithRetryDelay(-time.Second))
		require.Error(t, err)
		_, err = NewComposer(gen, WithTemplate("{{.context}} {{.unknown}}"))
		require.Error(t, err)
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		c, err := NewComposer(mock.NewMockGenerator(), WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, c.logger)
	})
}

func TestCompose_GroundedAnswer(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.Answer = "Supply chain disruption is the main risk [1]."
	c := newTestComposer(t, gen)

	docs := []core.Document{
		core.NewDocument("Risk factors include supply chain disruption", nil),
		core.NewDocument("Chip shortage eases http://news.example.com/chips", map[string]string{core.MetaSource: core.SourceNews}),
	}
	result, err := c.Compose(context.Background(), "What are the risks?", docs)
	require.NoError(t, err)

	assert.Equal(t, "Supply chain disruption is the main risk [1].", result.Answer)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.Diagnostic)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "Risk factors include supply chain disruption", result.Sources[0].Title)
	assert.Equal(t, "http://news.example.com/chips", result.Sources[1].URL)

	prompt := gen.LastPrompt()
	first := strings.Index(prompt, "[1] Risk factors include supply chain disruption")
	second := strings.Index(prompt, "[2] Chip shortage eases")
	assert.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first, "context keeps retrieval order")
	assert.Contains(t, prompt, "User question: What are the risks?")
	assert.Contains(t, prompt, "general knowledge")
	assert.Equal(t, "[1] Risk factors include supply chain disruption\n\n[2] Chip shortage eases http://news.example.com/chips", result.Context)
}

func TestCompose_SourcesCoverOnlyIncludedDocuments(t *testing.T) {
	gen := mock.NewMockGenerator()
	c := newTestComposer(t, gen, WithMaxContextChars(30))

	docs := []core.Document{
		core.NewDocument("first document body", nil),
		core.NewDocument("second document body that does not fit", nil),
	}
	result, err := c.Compose(context.Background(), "question", docs)
	require.NoError(t, err)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, "first document body", result.Sources[0].Title)
	assert.NotContains(t, gen.LastPrompt(), "second document")
}

func TestCompose_FallbackWithOnlySeedDocument(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(_ context.Context, prompt string) (string, error) {
		return "The documents do not cover this. In general, dividend policy depends on free cash flow.", nil
	}
	c := newTestComposer(t, gen)

	result, err := c.Compose(context.Background(), "What is the dividend policy?", []core.Document{core.SeedDocument()})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Answer)
	assert.False(t, result.Degraded)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, core.SeedContent, result.Sources[0].Title)
}

func TestCompose_NoDocuments(t *testing.T) {
	gen := mock.NewMockGenerator()
	c := newTestComposer(t, gen)

	result, err := c.Compose(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, "mock answer", result.Answer)
	assert.Empty(t, result.Sources)
	assert.Contains(t, gen.LastPrompt(), "(no documents were retrieved)")
}

func TestCompose_MalformedResponseIsNotRetried(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(context.Context, string) (string, error) {
		return "", fmt.Errorf("%w: no choices", core.ErrMalformedResponse)
	}
	c := newTestComposer(t, gen)

	docs := []core.Document{core.NewDocument("risk factors", nil)}
	result, err := c.Compose(context.Background(), "What are the risks?", docs)
	require.NoError(t, err)

	assert.Equal(t, NoAnswer, result.Answer)
	assert.True(t, result.Degraded)
	assert.Contains(t, result.Diagnostic, "malformed")
	assert.Equal(t, "[1] risk factors", result.Context)
	assert.Len(t, result.Sources, 1)
	assert.Equal(t, 1, gen.CallCount())
}

func TestCompose_BlankAnswerIsMalformed(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.Answer = "   \n"
	c := newTestComposer(t, gen)

	result, err := c.Compose(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, result.Answer)
	assert.True(t, result.Degraded)
}

func TestCompose_UnavailableRetriedOnce(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(context.Context, string) (string, error) {
		return "", fmt.Errorf("%w: 503", core.ErrBackendUnavailable)
	}
	c := newTestComposer(t, gen)

	result, err := c.Compose(context.Background(), "q", []core.Document{core.NewDocument("doc", nil)})
	require.NoError(t, err)

	assert.Equal(t, 2, gen.CallCount())
	assert.True(t, result.Degraded)
	assert.Equal(t, UnavailableAnswer, result.Answer)
	assert.Contains(t, result.Diagnostic, "503")
	assert.Len(t, result.Sources, 1)
}

func TestCompose_RecoversOnRetry(t *testing.T) {
	gen := mock.NewMockGenerator()
	calls := 0
	gen.GenerateFunc = func(context.Context, string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection reset by peer")
		}
		return "second time lucky", nil
	}
	c := newTestComposer(t, gen)

	result, err := c.Compose(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", result.Answer)
	assert.False(t, result.Degraded)
}

func TestCompose_TimeoutIsUnavailable(t *testing.T) {
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	c := newTestComposer(t, gen, WithTimeout(20*time.Millisecond))

	result, err := c.Compose(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, UnavailableAnswer, result.Answer)
	assert.Contains(t, result.Diagnostic, "no response within")
	assert.Equal(t, 2, gen.CallCount())
}

func TestCompose_WithoutCredential(t *testing.T) {
	gen, err := openai.NewGenerator(ai.NewConfig())
	require.NoError(t, err)
	c := newTestComposer(t, gen)

	docs := []core.Document{core.NewDocument("Headline http://example.com/a", map[string]string{core.MetaSource: core.SourceNews})}
	result, err := c.Compose(context.Background(), "What happened?", docs)
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, UnavailableAnswer, result.Answer)
	assert.Contains(t, result.Diagnostic, core.ErrBackendUnavailable.Error())
	assert.Contains(t, result.Diagnostic, "API key")
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "Headline", result.Sources[0].Title)
}

func TestCompose_CallerErrors(t *testing.T) {
	c := newTestComposer(t, mock.NewMockGenerator())

	_, err := c.Compose(context.Background(), "  ", nil)
	require.ErrorIs(t, err, ErrEmptyQuestion)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Compose(ctx, "q", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCompose_CanceledDuringBackendCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := mock.NewMockGenerator()
	gen.GenerateFunc = func(callCtx context.Context, _ string) (string, error) {
		cancel()
		<-callCtx.Done()
		return "", callCtx.Err()
	}
	c := newTestComposer(t, gen)

	_, err := c.Compose(ctx, "q", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, gen.CallCount())
}

func TestCompose_CustomTemplate(t *testing.T) {
	gen := mock.NewMockGenerator()
	c := newTestComposer(t, gen, WithTemplate("Q={{.question}} C={{.context}}"))

	_, err := c.Compose(context.Background(), "why", []core.Document{core.NewDocument("because", nil)})
	require.NoError(t, err)
	assert.Equal(t, "Q=why C=[1] because", gen.LastPrompt())
}
