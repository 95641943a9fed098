// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package dossier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/ai/local"
	"github.com/poiesic/dossier/ai/openai"
	"github.com/poiesic/dossier/answer"
	"github.com/poiesic/dossier/config"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/index"
	"github.com/poiesic/dossier/ingestion"
	"github.com/poiesic/dossier/search"
	"github.com/poiesic/dossier/storage"
	"github.com/poiesic/dossier/storage/badger"
	"github.com/poiesic/dossier/storage/chromem"
)

// Engine ties the pipeline components together. It is safe for concurrent
// use; queries run on a bounded pool and ingestion is serialized by the index.
type Engine struct {
	cfg       *config.Config
	provider  ai.AIProvider
	index     *index.Index
	retriever *search.Retriever
	composer  *answer.Composer
	gate      *ingestion.Gate
	pool      *ants.Pool
	now       func() time.Time
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	provider ai.AIProvider
	now      func() time.Time
	logger   *slog.Logger
}

// WithProvider uses provider instead of building one from the configuration.
// The engine takes ownership and closes it on Close.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithClock sets the time source used for lookback windows and entry
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open builds an engine from cfg. The index at cfg.Index.Path is loaded, or
// created with a single seed document when none can be loaded. An index
// built by a different embedder is reported as core.ErrEmbedderMismatch.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &engineOptions{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger.With("component", "engine")

	provider := options.provider
	if provider == nil {
		var err error
		if provider, err = NewProvider(ctx, cfg); err != nil {
			return nil, err
		}
	}

	opener, err := RepositoryOpener(cfg.Index.Backend)
	if err != nil {
		provider.Close()
		return nil, err
	}

	idx, err := index.Open(ctx, cfg.Index.Path, opener, provider.Embedder(),
		index.WithBatchSize(cfg.Index.BatchSize),
		index.WithSeedDocument(core.NewDocument(cfg.Index.Seed, map[string]string{core.MetaSource: core.SourceInit})),
		index.WithClock(options.now),
		index.WithLogger(options.logger.With("component", "index")),
	)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("opening index at %s: %w", cfg.Index.Path, err)
	}

	e := &Engine{
		cfg:      cfg,
		provider: provider,
		index:    idx,
		now:      options.now,
		logger:   logger,
	}
	if err := e.build(options.logger); err != nil {
		idx.Close()
		provider.Close()
		return nil, err
	}

	stats := idx.Stats()
	logger.Info("engine ready", "path", cfg.Index.Path, "count", stats.Count, "model", stats.Model, "dimension", stats.Dimension)
	return e, nil
}

// build wires the components that sit on top of the index.
func (e *Engine) build(logger *slog.Logger) error {
	var err error
	e.retriever, err = search.NewRetriever(e.index, e.provider.Embedder(),
		search.WithK(e.cfg.Retrieval.K),
		search.WithCacheSize(e.cfg.Retrieval.CacheSize),
		search.WithLogger(logger.With("component", "retriever")),
	)
	if err != nil {
		return err
	}

	e.composer, err = answer.NewComposer(e.provider.Generator(),
		answer.WithMaxContextChars(e.cfg.Answer.MaxContextChars),
		answer.WithTimeout(e.cfg.Backend.Timeout),
		answer.WithLogger(logger.With("component", "composer")),
	)
	if err != nil {
		return err
	}

	gateOpts := []ingestion.Option{
		ingestion.WithSource(e.cfg.Ingestion.Source),
		ingestion.WithLogger(logger.With("component", "ingestion")),
	}
	if e.cfg.Ingestion.ChunkSize > 0 {
		gateOpts = append(gateOpts, ingestion.WithChunking(e.cfg.Ingestion.ChunkSize, e.cfg.Ingestion.ChunkOverlap))
	}
	e.gate, err = ingestion.NewGate(e.index, gateOpts...)
	if err != nil {
		return err
	}

	e.pool, err = ants.NewPool(e.cfg.Workers.PoolSize, ants.WithMaxBlockingTasks(e.cfg.Workers.QueueDepth))
	return err
}

// NewProvider builds the AI provider described by cfg: the configured
// embedder paired with the OpenAI-compatible answer backend. A missing
// backend credential does not fail; answers are degraded instead.
func NewProvider(ctx context.Context, cfg *config.Config) (ai.AIProvider, error) {
	aiCfg := cfg.AIConfig()
	aiCfg.Normalize()
	if err := aiCfg.Validate(); err != nil {
		return nil, err
	}

	if aiCfg.EmbeddingProvider == ai.EmbeddingOpenAI {
		return openai.NewProvider(ctx, aiCfg)
	}

	embedder, err := local.NewEmbedder(aiCfg.EmbeddingDimension)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrModelUnavailable, err)
	}
	generator, err := openai.NewGenerator(aiCfg)
	if err != nil {
		return nil, err
	}
	if !aiCfg.HasBackendCredential() {
		slog.Default().Warn("backend credential missing, answers will be degraded")
	}
	return ai.Compose(embedder, generator)
}

// RepositoryOpener returns the Document Store constructor for backend.
func RepositoryOpener(backend config.Backend) (index.RepositoryOpener, error) {
	switch backend {
	case config.BackendBadger, "":
		return func(path string) (storage.EntryRepository, error) {
			return badger.NewRepository(path)
		}, nil
	case config.BackendChromem:
		return func(path string) (storage.EntryRepository, error) {
			return chromem.NewRepository(path)
		}, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", backend)
	}
}

// QueryOptions narrows a query.
type QueryOptions struct {
	// K is the number of documents to retrieve. Zero uses retrieval.k.
	K int
	// Lookback keeps documents ingested within this window. Zero disables it.
	Lookback time.Duration
	// Where keeps documents whose metadata contains every pair.
	Where map[string]string
}

func (e *Engine) filter(opts QueryOptions) *core.Filter {
	f := &core.Filter{Where: opts.Where}
	if opts.Lookback > 0 {
		f.Since = e.now().Add(-opts.Lookback)
	}
	if f.IsZero() {
		return nil
	}
	return f
}

// Query retrieves the documents most relevant to question and composes an
// attributed answer from them. Backend failures yield a degraded result.
// ErrBusy is returned when the worker queue is full.
func (e *Engine) Query(ctx context.Context, question string, opts QueryOptions) (*core.QueryResult, error) {
	type outcome struct {
		result *core.QueryResult
		err    error
	}
	done := make(chan outcome, 1)

	err := e.pool.Submit(func() {
		docs, err := e.retriever.RetrieveN(ctx, question, opts.K, e.filter(opts))
		if err != nil {
			done <- outcome{err: err}
			return
		}
		result, err := e.composer.Compose(ctx, question, docs)
		done <- outcome{result: result, err: err}
	})
	if err != nil {
		return nil, e.submitError(err)
	}

	select {
	case out := <-done:
		return out.result, closedError(out.err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) submitError(err error) error {
	switch {
	case errors.Is(err, ants.ErrPoolOverload):
		e.logger.Warn("query rejected, queue full", "queue_depth", e.cfg.Workers.QueueDepth)
		return ErrBusy
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrClosed
	default:
		return err
	}
}

// closedError reports a closed index as a closed engine.
func closedError(err error) error {
	if errors.Is(err, index.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Retrieve returns the matching documents without composing an answer. It
// needs no backend credential. It runs on the query pool, and the returned
// entries are copies the caller may modify.
func (e *Engine) Retrieve(ctx context.Context, question string, opts QueryOptions) ([]core.Match, error) {
	type outcome struct {
		matches []core.Match
		err     error
	}
	done := make(chan outcome, 1)

	err := e.pool.Submit(func() {
		matches, err := e.retriever.RetrieveMatches(ctx, question, opts.K, e.filter(opts))
		done <- outcome{matches: cloneMatches(matches), err: err}
	})
	if err != nil {
		return nil, e.submitError(err)
	}

	select {
	case out := <-done:
		return out.matches, closedError(out.err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func cloneMatches(matches []core.Match) []core.Match {
	if matches == nil {
		return nil
	}
	out := make([]core.Match, len(matches))
	for i, m := range matches {
		entry := *m.Entry
		entry.Vector = slices.Clone(entry.Vector)
		entry.Document.Metadata = maps.Clone(entry.Document.Metadata)
		out[i] = core.Match{Entry: &entry, Distance: m.Distance}
	}
	return out
}

// Ingest normalizes payloads and appends the valid ones to the index.
func (e *Engine) Ingest(ctx context.Context, payloads []ingestion.Payload) (*ingestion.Report, error) {
	report, err := e.gate.Ingest(ctx, payloads)
	return report, closedError(err)
}

// IngestDocuments appends already normalized documents to the index.
func (e *Engine) IngestDocuments(ctx context.Context, docs []core.Document) (*ingestion.Report, error) {
	report, err := e.gate.IngestDocuments(ctx, docs)
	return report, closedError(err)
}

// Stats summarizes the index.
func (e *Engine) Stats() index.Stats {
	return e.index.Stats()
}

// Close releases the worker pool, flushes and closes the index, then closes
// the provider. Subsequent calls return the first result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.pool.Release()

		var errs []error
		if err := e.index.Close(); err != nil {
			e.logger.Error("error closing index", "err", err)
			errs = append(errs, err)
		}
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
