package ai

import "errors"

// ErrEmbedderRequired is returned when a provider is composed without an embedder.
var ErrEmbedderRequired = errors.New("embedder required")

// ErrGeneratorRequired is returned when a provider is composed without a generator.
var ErrGeneratorRequired = errors.New("generator required")

// ErrMissingCredential is reported by generators that have no backend API key.
var ErrMissingCredential = errors.New("no backend API key configured")

// composite pairs an embedder and generator from different implementations,
// e.g. a local embedder with a remote backend.
type composite struct {
	embedder  Embedder
	generator Generator
	closers   []func() error
}

// Compose builds an AIProvider from independently constructed services.
// closers run in order on Close.
func Compose(embedder Embedder, generator Generator, closers ...func() error) (AIProvider, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	return &composite{embedder: embedder, generator: generator, closers: closers}, nil
}

func (c *composite) Embedder() Embedder   { return c.embedder }
func (c *composite) Generator() Generator { return c.generator }

func (c *composite) Close() error {
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
