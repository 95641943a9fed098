package reindex

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/retry"
	"github.com/poiesic/dossier/storage"
)

// BatchProcessor re-embeds batches of entries and appends them to a target
// repository, advancing the target manifest with every batch.
type BatchProcessor struct {
	target         storage.EntryRepository
	embedder       ai.Embedder
	manifest       core.Manifest
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a batch processor that starts from manifest.
// maxRetries: maximum number of attempts for each embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(target storage.EntryRepository, embedder ai.Embedder, manifest core.Manifest, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		target:         target,
		embedder:       embedder,
		manifest:       manifest,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process re-embeds entries and appends them to the target in order.
// Documents and insertion times are carried over unchanged; sequence numbers
// continue from the target manifest.
func (bp *BatchProcessor) Process(ctx context.Context, entries []*core.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Document.Content
	}

	var embeddings [][]float32
	err := retry.WithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(entries) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(entries), len(embeddings))
	}

	manifest := bp.manifest
	rebuilt := make([]*core.Entry, len(entries))
	for i, e := range entries {
		if err := core.ValidateVector(embeddings[i], manifest.Dimension); err != nil {
			return fmt.Errorf("entry %d: %w", e.Seq, err)
		}
		rebuilt[i] = &core.Entry{
			Seq:        manifest.Count + uint64(i) + 1,
			Vector:     embeddings[i],
			Document:   e.Document,
			InsertedAt: e.InsertedAt,
		}
	}
	manifest.Count += uint64(len(rebuilt))
	manifest.UpdatedAt = time.Now().UTC()

	if err := bp.target.AppendEntries(ctx, &manifest, rebuilt...); err != nil {
		return fmt.Errorf("failed to append entries: %w", err)
	}

	bp.manifest = manifest
	return nil
}

// Manifest returns the target manifest as of the last appended batch.
func (bp *BatchProcessor) Manifest() core.Manifest {
	return bp.manifest
}
