package storage

import (
	"context"

	"github.com/poiesic/dossier/core"
)

// EntryRepository persists vector entries and the manifest describing them.
// Implementations must be thread-safe and support concurrent access.
type EntryRepository interface {
	// LoadManifest returns the persisted manifest.
	// Returns ErrNotFound if no index has been written to this repository.
	LoadManifest(ctx context.Context) (*core.Manifest, error)

	// AppendEntries stores entries together with the updated manifest.
	// Either every entry and the manifest are persisted or none are.
	// Entries must carry strictly increasing Seq values greater than any
	// already stored; Seq order is the order Entries replays them in.
	AppendEntries(ctx context.Context, manifest *core.Manifest, entries ...*core.Entry) error

	// Entries calls fn for every stored entry in Seq order.
	// Iteration stops at the first error returned by fn.
	Entries(ctx context.Context, fn func(*core.Entry) error) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Sync flushes pending writes to durable storage.
	Sync() error

	// Close closes the storage backend and releases resources.
	Close() error
}
