package reindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/storage"
)

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of entries re-embedded per call
	BatchSize int

	// ReportInterval is how often to report progress (number of entries)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result summarizes a completed run.
type Result struct {
	Entries  int
	Manifest core.Manifest
	Elapsed  time.Duration
}

// Reindexer copies an index into a new repository under a different embedder.
type Reindexer struct {
	source   storage.EntryRepository
	target   storage.EntryRepository
	embedder ai.Embedder
	config   *Config
	progress io.Writer
}

// NewReindexer creates a reindexer from source to target.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(source, target storage.EntryRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reindexer, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if target == nil {
		return nil, ErrTargetRequired
	}
	if source == target {
		return nil, ErrSameRepository
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		source:   source,
		target:   target,
		embedder: embedder,
		config:   config,
		progress: progress,
	}, nil
}

// Run re-embeds every source entry into the target.
// The target must be empty. On failure the target holds the batches
// appended so far and should be discarded.
func (r *Reindexer) Run(ctx context.Context) (*Result, error) {
	from, err := r.source.LoadManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load source manifest: %w", err)
	}

	_, err = r.target.LoadManifest(ctx)
	switch {
	case err == nil:
		return nil, ErrTargetNotEmpty
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to inspect target: %w", err)
	}

	total, err := r.source.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count source entries: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No entries found in source index (0 entries)\n")
		return &Result{}, nil
	}

	now := time.Now().UTC()
	manifest := core.Manifest{
		Version:   core.ManifestVersion,
		Dimension: r.embedder.Dimension(),
		Model:     r.embedder.Model(),
		Metric:    core.MetricCosine,
		CreatedAt: now,
		UpdatedAt: now,
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d entries from %s to %s (batch size: %d)\n",
		total, from.Model, manifest.Model, r.config.BatchSize)

	processor := NewBatchProcessor(r.target, r.embedder, manifest, r.config.MaxRetries, r.config.RetryDelay)
	iterator := NewEntryIterator(r.source, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = iterator.ForEach(ctx, func(entries []*core.Entry) error {
		if err := processor.Process(ctx, entries); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		tracker.Add(len(entries))
		return nil
	})
	tracker.Finish()
	if err != nil {
		return nil, err
	}

	if err := r.target.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync target: %w", err)
	}

	result := &Result{
		Entries:  int(processor.Manifest().Count),
		Manifest: processor.Manifest(),
		Elapsed:  tracker.Elapsed(),
	}
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d entries in %v (%.1f records/sec)\n",
		result.Entries, result.Elapsed.Round(time.Millisecond), float64(result.Entries)/result.Elapsed.Seconds())

	return result, nil
}

// Run re-embeds every entry of source into the empty target.
func Run(ctx context.Context, source, target storage.EntryRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Result, error) {
	r, err := NewReindexer(source, target, embedder, config, progress)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}
