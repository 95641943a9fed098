package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/core"
)

const (
	// DefaultK is the number of documents retrieved when no k is given.
	DefaultK = 5

	// DefaultCacheSize is the number of query embeddings kept in memory.
	DefaultCacheSize = 256
)

// VectorIndex is the read side of the vector index used by a Retriever.
type VectorIndex interface {
	Search(ctx context.Context, vec []float32, k int, filter *core.Filter) ([]core.Match, error)
	Manifest() core.Manifest
}

// Retriever finds the documents nearest to a query.
type Retriever struct {
	index     VectorIndex
	embedder  ai.Embedder
	k         int
	cacheSize int
	cache     *lru.Cache[string, []float32]
	logger    *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithK sets the number of documents Retrieve returns.
// Default is DefaultK.
func WithK(k int) Option {
	return func(r *Retriever) error {
		if k < 1 {
			return fmt.Errorf("k must be positive, got %d", k)
		}
		r.k = k
		return nil
	}
}

// WithCacheSize sets how many query embeddings are cached. Zero disables
// the cache. Default is DefaultCacheSize.
func WithCacheSize(size int) Option {
	return func(r *Retriever) error {
		if size < 0 {
			return fmt.Errorf("cache size must not be negative, got %d", size)
		}
		r.cacheSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a retriever over index. The embedder must be the one
// the index was built with.
func NewRetriever(index VectorIndex, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	manifest := index.Manifest()
	if manifest.Dimension != embedder.Dimension() || manifest.Model != embedder.Model() {
		return nil, fmt.Errorf("%w: index uses %s, retriever was given %s",
			core.ErrEmbedderMismatch, manifest.Model, embedder.Model())
	}

	r := &Retriever{
		index:     index,
		embedder:  embedder,
		k:         DefaultK,
		cacheSize: DefaultCacheSize,
		logger:    slog.Default().With("component", "retriever"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.cacheSize > 0 {
		cache, err := lru.New[string, []float32](r.cacheSize)
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}

	return r, nil
}

// K returns the number of documents Retrieve returns.
func (r *Retriever) K() int {
	return r.k
}

// Retrieve returns the k most similar documents to query, most similar first,
// using the k chosen at construction.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]core.Document, error) {
	return r.RetrieveN(ctx, query, r.k, nil)
}

// RetrieveN returns up to k documents matching filter, most similar first.
// A k of zero uses the retriever's default.
func (r *Retriever) RetrieveN(ctx context.Context, query string, k int, filter *core.Filter) ([]core.Document, error) {
	matches, err := r.RetrieveWithMonitor(ctx, query, k, filter, nil)
	if err != nil {
		return nil, err
	}
	return documents(matches), nil
}

// RetrieveMatches is RetrieveN but keeps the distances.
func (r *Retriever) RetrieveMatches(ctx context.Context, query string, k int, filter *core.Filter) ([]core.Match, error) {
	return r.RetrieveWithMonitor(ctx, query, k, filter, nil)
}

// RetrieveWithMonitor retrieves like RetrieveMatches and reports each stage
// to monitor. A nil monitor is allowed.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, query string, k int, filter *core.Filter, monitor RetrievalMonitor) ([]core.Match, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k == 0 {
		k = r.k
	}

	monitor.Start(query, k, filter)

	vector, cached, err := r.embedQuery(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(vector, cached)

	matches, err := r.index.Search(ctx, vector, k, filter)
	if err != nil {
		r.logger.Error("error searching index", "k", k, "err", err)
		return nil, err
	}
	monitor.AfterSearch(matches)

	monitor.Finish(documents(matches))
	r.logger.Debug("retrieved documents", "k", k, "count", len(matches), "cached", cached)
	return matches, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, bool, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(query); ok {
			return v, true, nil
		}
	}
	v, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, false, err
	}
	if r.cache != nil {
		r.cache.Add(query, slices.Clone(v))
	}
	return v, false, nil
}

func documents(matches []core.Match) []core.Document {
	docs := make([]core.Document, len(matches))
	for i, m := range matches {
		docs[i] = m.Entry.Document
	}
	return docs
}
