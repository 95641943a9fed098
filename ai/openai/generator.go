package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using an OpenAI-compatible chat API.
type Generator struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.BackendHost),
		openai.WithToken(config.BackendAPIKey),
		openai.WithModel(config.BackendModel),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrModelUnavailable, err)
	}

	return newGeneratorWithModel(client, config), nil
}

func newGeneratorWithModel(client llms.Model, config *ai.Config) *Generator {
	return &Generator{
		client:      client,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		logger:      slog.Default().With("component", "openai-generator"),
	}
}

// NewGenerator creates a backend generator using the provided configuration.
// Without a backend credential it returns a generator whose every call fails
// with core.ErrBackendUnavailable.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.HasBackendCredential() {
		return &unavailableGenerator{err: fmt.Errorf("%w: %w", core.ErrBackendUnavailable, ai.ErrMissingCredential)}, nil
	}
	return newGenerator(config)
}

// NewGeneratorWithModel wraps an existing langchaingo model, such as
// llms/fake in tests or another provider package.
func NewGeneratorWithModel(client llms.Model, config *ai.Config) ai.Generator {
	return newGeneratorWithModel(client, config)
}

// Generate sends prompt as a single user message and returns the first choice.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.logger.Debug("invoking backend", "prompt_length", len(prompt))

	resp, err := g.client.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		g.logger.Error("backend call failed", "err", err)
		return "", fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", fmt.Errorf("%w: response has no choices", core.ErrMalformedResponse)
	}
	answer := strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer (stop reason %q)", core.ErrMalformedResponse, resp.Choices[0].StopReason)
	}
	return answer, nil
}

// unavailableGenerator fails every call. It stands in for the backend when no
// credential is configured so that the rest of the pipeline keeps working.
type unavailableGenerator struct {
	err error
}

// NewUnavailableGenerator returns a generator that always fails with
// core.ErrBackendUnavailable and the given reason.
func NewUnavailableGenerator(reason string) ai.Generator {
	return &unavailableGenerator{err: fmt.Errorf("%w: %s", core.ErrBackendUnavailable, reason)}
}

func (u *unavailableGenerator) Generate(context.Context, string) (string, error) {
	return "", u.err
}
