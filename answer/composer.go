package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/retry"
	"github.com/tmc/langchaingo/prompts"
)

const (
	// DefaultMaxContextChars bounds the context block sent to the backend.
	DefaultMaxContextChars = 12000

	// DefaultTimeout bounds a single backend call.
	DefaultTimeout = 60 * time.Second

	// DefaultRetryDelay is the pause before the single retry.
	DefaultRetryDelay = 500 * time.Millisecond

	// maxAttempts is one call plus at most one retry.
	maxAttempts = 2
)

// Answers used for degraded results.
const (
	NoAnswer          = "No answer found."
	UnavailableAnswer = "The answer service is currently unavailable, so no answer could be composed. The retrieved sources are listed below."
)

// Composer turns retrieved documents and a question into a QueryResult.
type Composer struct {
	generator       ai.Generator
	maxContextChars int
	timeout         time.Duration
	retryDelay      time.Duration
	template        prompts.PromptTemplate
	logger          *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer) error

// WithMaxContextChars bounds the context block in characters.
// Default is DefaultMaxContextChars.
func WithMaxContextChars(n int) Option {
	return func(c *Composer) error {
		if n < 1 {
			return fmt.Errorf("max context chars must be positive, got %d", n)
		}
		c.maxContextChars = n
		return nil
	}
}

// WithTimeout bounds each backend call. Default is DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Composer) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.timeout = d
		return nil
	}
}

// WithRetryDelay sets the pause before retrying an unavailable backend.
// Default is DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Composer) error {
		if d < 0 {
			return fmt.Errorf("retry delay must not be negative, got %s", d)
		}
		c.retryDelay = d
		return nil
	}
}

// WithTemplate replaces the instruction template. The template is a Go
// template that must reference only the variables "context" and "question".
func WithTemplate(text string) Option {
	return func(c *Composer) error {
		tmpl := newTemplate(text)
		if _, err := renderPrompt(tmpl, "context", "question"); err != nil {
			return fmt.Errorf("invalid template: %w", err)
		}
		c.template = tmpl
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewComposer creates a composer that asks generator for answers.
func NewComposer(generator ai.Generator, opts ...Option) (*Composer, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	c := &Composer{
		generator:       generator,
		maxContextChars: DefaultMaxContextChars,
		timeout:         DefaultTimeout,
		retryDelay:      DefaultRetryDelay,
		template:        newTemplate(DefaultTemplate),
		logger:          slog.Default().With("component", "composer"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Compose answers question from docs, which must be in retrieval order.
//
// Sources attribute exactly the documents included in the context. Backend
// failures yield a degraded result rather than an error; an error is
// returned only for a blank question, a broken template or a done context.
func (c *Composer) Compose(ctx context.Context, question string, docs []core.Document) (*core.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	block, included := BuildContext(docs, c.maxContextChars)
	result := &core.QueryResult{
		Sources: Attribute(docs[:included]),
		Context: block,
	}
	if included < len(docs) {
		c.logger.Debug("context budget reached", "included", included, "count", len(docs))
	}

	prompt, err := renderPrompt(c.template, block, question)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	answer, err := c.generate(ctx, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.degrade(result, err)
		return result, nil
	}

	result.Answer = answer
	return result, nil
}

// generate calls the backend with a per-attempt timeout, retrying once when
// the backend is unavailable.
func (c *Composer) generate(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := retry.Do(ctx, func(attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		out, err := c.generator.Generate(attemptCtx, prompt)
		if err != nil {
			if ctx.Err() == nil && attemptCtx.Err() != nil {
				err = fmt.Errorf("%w: no response within %s", core.ErrBackendUnavailable, c.timeout)
			} else if !errors.Is(err, core.ErrMalformedResponse) && !errors.Is(err, core.ErrBackendUnavailable) && ctx.Err() == nil {
				err = fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
			}
			c.logger.Warn("backend call failed", "attempt", attempt, "err", err)
			return err
		}

		out = strings.TrimSpace(out)
		if out == "" {
			return fmt.Errorf("%w: empty answer", core.ErrMalformedResponse)
		}
		answer = out
		return nil
	},
		retry.WithMaxAttempts(maxAttempts),
		retry.WithBaseDelay(c.retryDelay),
		retry.If(retryable),
		retry.WithLogger(c.logger),
	)
	return answer, err
}

// retryable reports whether a failed call is worth one more attempt. A
// missing credential will not appear between attempts.
func retryable(err error) bool {
	return errors.Is(err, core.ErrBackendUnavailable) && !errors.Is(err, ai.ErrMissingCredential)
}

// degrade fills result with the explanation for a failed backend call.
func (c *Composer) degrade(result *core.QueryResult, err error) {
	result.Degraded = true
	result.Diagnostic = err.Error()
	if errors.Is(err, core.ErrMalformedResponse) {
		result.Answer = NoAnswer
		c.logger.Error("backend returned no usable answer", "err", err)
		return
	}
	result.Answer = UnavailableAnswer
	c.logger.Error("backend unavailable", "err", err)
}
