package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/storage"
)

const (
	// DefaultBatchSize is the number of texts sent to the embedder per call.
	DefaultBatchSize = 32

	// searchCheckInterval is how many entries are scored between context checks.
	searchCheckInterval = 1024
)

// Index is an append-only vector index over a storage.EntryRepository.
// The index owns the repository; Close closes it.
type Index struct {
	repo      storage.EntryRepository
	embedder  ai.Embedder
	pool      *ants.Pool
	poolSize  int
	batchSize int
	seed      core.Document
	now       func() time.Time
	logger    *slog.Logger

	// writeMu serializes appends. Embedding happens under writeMu only, so
	// readers are blocked just for the final publish.
	writeMu sync.Mutex

	mu       sync.RWMutex
	entries  []*core.Entry
	manifest core.Manifest
	closed   bool
}

// Option configures an Index.
type Option func(*Index) error

// WithBatchSize sets how many documents are embedded per embedder call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(idx *Index) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		idx.batchSize = size
		return nil
	}
}

// WithPoolSize sets the number of embedding batches processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(idx *Index) error {
		if size < 1 {
			size = 1
		}
		idx.poolSize = size
		return nil
	}
}

// WithSeedDocument replaces the placeholder document Open seeds a new index with.
func WithSeedDocument(doc core.Document) Option {
	return func(idx *Index) error {
		if err := core.ValidateDocument(&doc); err != nil {
			return err
		}
		idx.seed = doc
		return nil
	}
}

// WithClock sets the time source used to stamp new entries.
func WithClock(now func() time.Time) Option {
	return func(idx *Index) error {
		if now != nil {
			idx.now = now
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		idx.logger = logger
		return nil
	}
}

func newIndex(repo storage.EntryRepository, embedder ai.Embedder, opts ...Option) (*Index, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	idx := &Index{
		repo:      repo,
		embedder:  embedder,
		poolSize:  max(runtime.NumCPU()/2, 1),
		batchSize: DefaultBatchSize,
		seed:      core.SeedDocument(),
		now:       time.Now,
		logger:    slog.Default().With("component", "index"),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(idx.poolSize)
	if err != nil {
		return nil, err
	}
	idx.pool = pool
	return idx, nil
}

// Create builds a new index in an empty repository from a non-empty set of
// seed documents. It fails with storage.ErrAlreadyExists if the repository
// already holds an index.
func Create(ctx context.Context, repo storage.EntryRepository, embedder ai.Embedder, seeds []core.Document, opts ...Option) (*Index, error) {
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	_, err := repo.LoadManifest(ctx)
	switch {
	case err == nil:
		return nil, storage.ErrAlreadyExists
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	idx, err := newIndex(repo, embedder, opts...)
	if err != nil {
		return nil, err
	}
	now := idx.now().UTC()
	idx.manifest = core.Manifest{
		Version:   core.ManifestVersion,
		Dimension: embedder.Dimension(),
		Model:     embedder.Model(),
		Metric:    core.MetricCosine,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := idx.AddDocuments(ctx, seeds); err != nil {
		idx.pool.Release()
		return nil, err
	}
	idx.logger.Info("created index", "count", len(seeds), "dimension", idx.manifest.Dimension, "model", idx.manifest.Model)
	return idx, nil
}

// Load reads a persisted index from the repository.
//
// A missing manifest, an empty index or any undecodable entry fails with
// core.ErrIndexLoad. A manifest written by a different embedder fails with
// core.ErrEmbedderMismatch. Storage failures that say nothing about the
// persisted data, such as a closed repository, are returned as is.
func Load(ctx context.Context, repo storage.EntryRepository, embedder ai.Embedder, opts ...Option) (*Index, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	manifest, err := repo.LoadManifest(ctx)
	if err != nil {
		return nil, loadError("reading manifest", err)
	}
	if manifest.Version != core.ManifestVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", core.ErrIndexLoad, manifest.Version)
	}
	if manifest.Metric != core.MetricCosine {
		return nil, fmt.Errorf("%w: unsupported metric %q", core.ErrIndexLoad, manifest.Metric)
	}
	if manifest.Dimension != embedder.Dimension() || manifest.Model != embedder.Model() {
		return nil, fmt.Errorf("%w: index built with %s (dimension %d), active embedder is %s (dimension %d)",
			core.ErrEmbedderMismatch, manifest.Model, manifest.Dimension, embedder.Model(), embedder.Dimension())
	}
	if manifest.Count == 0 {
		return nil, fmt.Errorf("%w: index has no entries", core.ErrIndexLoad)
	}

	entries := make([]*core.Entry, 0, manifest.Count)
	err = repo.Entries(ctx, func(e *core.Entry) error {
		if err := core.ValidateVector(e.Vector, manifest.Dimension); err != nil {
			return fmt.Errorf("%w: entry %d: %w", core.ErrIndexLoad, e.Seq, err)
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, loadError("reading entries", err)
	}
	if uint64(len(entries)) != manifest.Count {
		return nil, fmt.Errorf("%w: manifest records %d entries, found %d",
			core.ErrIndexLoad, manifest.Count, len(entries))
	}

	idx, err := newIndex(repo, embedder, opts...)
	if err != nil {
		return nil, err
	}
	idx.entries = entries
	idx.manifest = *manifest
	idx.logger.Debug("loaded index", "count", len(entries), "model", manifest.Model)
	return idx, nil
}

// loadError marks err as core.ErrIndexLoad when it means the persisted data is
// missing or unreadable.
func loadError(op string, err error) error {
	switch {
	case errors.Is(err, core.ErrIndexLoad):
		return err
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrSerializationFailed),
		errors.Is(err, storage.ErrTruncatedData),
		errors.Is(err, storage.ErrSequenceOrder),
		errors.Is(err, storage.ErrCorrupt):
		return fmt.Errorf("%w: %s: %w", core.ErrIndexLoad, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// AddDocuments embeds documents and appends them to the index in order.
// Existing entries are never modified. Either every document is appended or
// none is. The assigned entries are returned.
func (idx *Index) AddDocuments(ctx context.Context, docs []core.Document) ([]*core.Entry, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	for i := range docs {
		if err := core.ValidateDocument(&docs[i]); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	if idx.isClosed() {
		return nil, ErrClosed
	}

	vectors, err := idx.embed(ctx, docs)
	if err != nil {
		return nil, err
	}

	// Only writers touch the manifest, and writeMu is held.
	manifest := idx.manifest
	now := idx.now().UTC()
	entries := make([]*core.Entry, len(docs))
	for i, doc := range docs {
		entries[i] = &core.Entry{
			Seq:        manifest.Count + uint64(i) + 1,
			Vector:     vectors[i],
			Document:   core.NewDocument(doc.Content, doc.Metadata),
			InsertedAt: now,
		}
	}
	manifest.Count += uint64(len(entries))
	manifest.UpdatedAt = now

	if err := idx.repo.AppendEntries(ctx, &manifest, entries...); err != nil {
		return nil, fmt.Errorf("persisting entries: %w", err)
	}

	idx.mu.Lock()
	idx.entries = append(idx.entries, entries...)
	idx.manifest = manifest
	idx.mu.Unlock()

	idx.logger.Debug("appended documents", "count", len(entries), "total", manifest.Count)
	return entries, nil
}

// embed runs the embedder over docs in batches on the worker pool and
// returns one validated vector per document, in document order.
func (idx *Index) embed(ctx context.Context, docs []core.Document) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	dim := idx.manifest.Dimension

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	for start := 0; start < len(docs); start += idx.batchSize {
		end := min(start+idx.batchSize, len(docs))
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = docs[start+i].Content
		}

		wg.Add(1)
		err := idx.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			batch, err := idx.embedder.EmbedTexts(ctx, texts)
			if err != nil {
				cancel(fmt.Errorf("embedding documents %d-%d: %w", start, end-1, err))
				return
			}
			if len(batch) != len(texts) {
				cancel(fmt.Errorf("embedder returned %d vectors for %d documents", len(batch), len(texts)))
				return
			}
			for i, v := range batch {
				if err := core.ValidateVector(v, dim); err != nil {
					cancel(fmt.Errorf("document %d: %w", start+i, err))
					return
				}
				vectors[start+i] = v
			}
		})
		if err != nil {
			wg.Done()
			cancel(err)
			break
		}
	}
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Search returns up to k entries nearest to vec by cosine distance, most
// similar first. Equal distances keep insertion order. A non-nil filter
// restricts the candidates before ranking.
func (idx *Index) Search(ctx context.Context, vec []float32, k int, filter *core.Filter) ([]core.Match, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}

	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return nil, ErrClosed
	}
	// Appends never rewrite existing elements, so the prefix is safe to scan
	// after the lock is released.
	entries := idx.entries
	dim := idx.manifest.Dimension
	idx.mu.RUnlock()

	if err := core.ValidateVector(vec, dim); err != nil {
		return nil, err
	}

	matches := make([]core.Match, 0, len(entries))
	for i, e := range entries {
		if i%searchCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !filter.Matches(e) {
			continue
		}
		matches = append(matches, core.Match{Entry: e, Distance: ai.CosineDistance(vec, e.Vector)})
	}

	slices.SortStableFunc(matches, func(a, b core.Match) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Save flushes the repository to durable storage. Every append is already
// committed, so Save is idempotent.
func (idx *Index) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if idx.isClosed() {
		return ErrClosed
	}
	return idx.repo.Sync()
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Manifest returns a copy of the current manifest.
func (idx *Index) Manifest() core.Manifest {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.manifest
}

// Embedder returns the embedder the index was built with.
func (idx *Index) Embedder() ai.Embedder {
	return idx.embedder
}

// Stats summarizes an index.
type Stats struct {
	Count     int         `json:"count"`
	Dimension int         `json:"dimension"`
	Model     string      `json:"model"`
	Metric    core.Metric `json:"metric"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Stats returns a summary of the index.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		Count:     len(idx.entries),
		Dimension: idx.manifest.Dimension,
		Model:     idx.manifest.Model,
		Metric:    idx.manifest.Metric,
		CreatedAt: idx.manifest.CreatedAt,
		UpdatedAt: idx.manifest.UpdatedAt,
	}
}

// Close waits for in-flight appends, flushes and closes the repository.
// Subsequent calls are no-ops.
func (idx *Index) Close() error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	idx.mu.Lock()
	if idx.closed {
		idx.mu.Unlock()
		return nil
	}
	idx.closed = true
	idx.mu.Unlock()

	idx.pool.Release()
	syncErr := idx.repo.Sync()
	if syncErr != nil {
		idx.logger.Error("error flushing index", "err", syncErr)
	}
	return errors.Join(syncErr, idx.repo.Close())
}

func (idx *Index) isClosed() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.closed
}
