package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/storage"
)

// RepositoryOpener opens the entry repository stored at path.
type RepositoryOpener func(path string) (storage.EntryRepository, error)

// Open loads the index persisted at path, or creates one if none can be loaded.
//
// When the storage is corrupt (storage.ErrCorrupt) or loading fails with
// core.ErrIndexLoad, whatever is at path is moved aside to "<path>.corrupt-<unix seconds>" and a new index is created with a
// single seed document and saved. A fresh, empty repository is used in place.
// core.ErrEmbedderMismatch is returned as is: the index is intact but was
// built by a different embedder and must be rebuilt explicitly. Any other
// open error, such as storage.ErrLocked or a permission failure, is returned
// and the path is left untouched.
func Open(ctx context.Context, path string, open RepositoryOpener, embedder ai.Embedder, opts ...Option) (*Index, error) {
	if open == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	logger := slog.Default().With("component", "index", "path", path)

	repo, err := open(path)
	if err != nil {
		if !errors.Is(err, storage.ErrCorrupt) {
			return nil, fmt.Errorf("opening index storage: %w", err)
		}
		logger.Warn("index storage cannot be opened, recreating", "err", err)
		if err := quarantine(path, logger); err != nil {
			return nil, err
		}
		if repo, err = open(path); err != nil {
			return nil, fmt.Errorf("opening index storage: %w", err)
		}
	}

	idx, err := Load(ctx, repo, embedder, opts...)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, core.ErrIndexLoad) {
		repo.Close()
		return nil, err
	}

	if !isEmpty(ctx, repo) {
		logger.Warn("persisted index is unreadable, recreating", "err", err)
		repo.Close()
		if err := quarantine(path, logger); err != nil {
			return nil, err
		}
		if repo, err = open(path); err != nil {
			return nil, fmt.Errorf("opening index storage: %w", err)
		}
	} else {
		logger.Info("no persisted index, creating")
	}

	return createSeeded(ctx, repo, embedder, opts...)
}

func createSeeded(ctx context.Context, repo storage.EntryRepository, embedder ai.Embedder, opts ...Option) (*Index, error) {
	// The seed may be overridden by an option, so resolve options first.
	resolved := &Index{seed: core.SeedDocument()}
	for _, opt := range opts {
		if err := opt(resolved); err != nil {
			repo.Close()
			return nil, err
		}
	}

	idx, err := Create(ctx, repo, embedder, []core.Document{resolved.seed}, opts...)
	if err != nil {
		repo.Close()
		return nil, err
	}
	if err := idx.Save(ctx); err != nil {
		idx.Close()
		return nil, err
	}
	return idx, nil
}

// isEmpty reports whether the repository holds neither a manifest nor entries.
func isEmpty(ctx context.Context, repo storage.EntryRepository) bool {
	if _, err := repo.LoadManifest(ctx); !errors.Is(err, storage.ErrNotFound) {
		return false
	}
	count, err := repo.Count(ctx)
	return err == nil && count == 0
}

// quarantine renames path out of the way so a new index can be created there.
// Paths that do not exist, and in-memory repositories with no path, are left
// alone.
func quarantine(path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	target := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("moving unreadable index aside: %w", err)
	}
	logger.Warn("moved unreadable index aside", "target", target)
	return nil
}
