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


package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/storage"
)

// Repository implements storage.EntryRepository using BadgerDB.
type Repository struct {
	backend    *Backend
	ownBackend bool
}

var _ storage.EntryRepository = (*Repository)(nil)

// NewRepository opens a BadgerDB database at path and returns a repository
// that owns it. Closing the repository closes the database.
func NewRepository(path string) (*Repository, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return &Repository{backend: backend, ownBackend: true}, nil
}

// NewRepositoryWithBackend creates a repository on an already open backend.
// The caller remains responsible for closing the backend.
func NewRepositoryWithBackend(backend *Backend) (*Repository, error) {
	if backend == nil {
		return nil, errors.New("badger: backend is required")
	}
	return &Repository{backend: backend}, nil
}

// LoadManifest returns the stored manifest or storage.ErrNotFound.
func (r *Repository) LoadManifest(ctx context.Context) (*core.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var manifest *core.Manifest
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		manifest, err = readManifest(tx)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

// AppendEntries writes entries and then the manifest.
//
// Entries go through a write batch, which badger splits into as many
// transactions as their size needs. The manifest is written last in its own
// transaction and is the commit point: Entries and Count never look past
// manifest.Count, so a failed append leaves no visible trace and its
// leftover keys are overwritten by the next append.
//
// Entry sequence numbers must continue directly from the stored count, and
// the manifest count must cover the appended entries.
func (r *Repository) AppendEntries(ctx context.Context, manifest *core.Manifest, entries ...*core.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if manifest == nil {
		return errors.New("badger: manifest is required")
	}

	stored, err := r.storedCount()
	if err != nil {
		return err
	}
	if manifest.Count != stored+uint64(len(entries)) {
		return fmt.Errorf("%w: manifest count %d, stored %d, appending %d",
			storage.ErrSequenceOrder, manifest.Count, stored, len(entries))
	}
	for i, entry := range entries {
		if entry.Seq != stored+uint64(i)+1 {
			return fmt.Errorf("%w: entry %d has seq %d, want %d",
				storage.ErrSequenceOrder, i, entry.Seq, stored+uint64(i)+1)
		}
	}

	if len(entries) > 0 {
		err := r.backend.WithWriteBatch(func(wb *badger.WriteBatch) error {
			for _, entry := range entries {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := wb.Set(makeEntryKey(entry.Seq), storage.MarshalEntry(entry)); err != nil {
					return fmt.Errorf("badger: writing entry %d: %w", entry.Seq, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readManifest(tx)
		switch {
		case err == nil:
			if current.Count != stored {
				return fmt.Errorf("%w: manifest moved from %d to %d during append",
					storage.ErrSequenceOrder, stored, current.Count)
			}
		case errors.Is(err, storage.ErrNotFound):
		default:
			return err
		}
		if err := tx.Set([]byte(manifestKey), storage.MarshalManifest(manifest)); err != nil {
			return fmt.Errorf("badger: writing manifest: %w", err)
		}
		return tx.Commit()
	}, true)
}

// storedCount returns the entry count recorded by the manifest, zero when
// no manifest exists yet.
func (r *Repository) storedCount() (uint64, error) {
	var count uint64
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		manifest, err := readManifest(tx)
		switch {
		case err == nil:
			count = manifest.Count
			return nil
		case errors.Is(err, storage.ErrNotFound):
			return nil
		default:
			return err
		}
	}, false)
	return count, err
}

// committed returns the manifest count visible to tx, or false when no
// manifest has been written.
func committed(tx *badger.Txn) (uint64, bool, error) {
	manifest, err := readManifest(tx)
	switch {
	case err == nil:
		return manifest.Count, true, nil
	case errors.Is(err, storage.ErrNotFound):
		return 0, false, nil
	default:
		return 0, false, err
	}
}

// Entries replays committed entries in sequence order.
func (r *Repository) Entries(ctx context.Context, fn func(*core.Entry) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		limit, ok, err := committed(tx)
		if err != nil || !ok {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			seq, ok := seqFromEntryKey(item.Key())
			if !ok {
				return fmt.Errorf("%w: malformed entry key %x", storage.ErrTruncatedData, item.Key())
			}
			if seq > limit {
				break
			}
			var entry *core.Entry
			err := item.Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalEntry(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("badger: reading entry %d: %w", seq, err)
			}
			if entry.Seq != seq {
				return fmt.Errorf("%w: entry key %d holds seq %d", storage.ErrSequenceOrder, seq, entry.Seq)
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// Count returns the number of committed entries.
func (r *Repository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := r.storedCount()
	return int(count), err
}

// Sync flushes committed writes to disk.
func (r *Repository) Sync() error {
	return r.backend.Sync()
}

// Close releases the repository. The backend is closed only when the
// repository opened it.
func (r *Repository) Close() error {
	if r.ownBackend {
		return r.backend.Close()
	}
	return nil
}

func readManifest(tx *badger.Txn) (*core.Manifest, error) {
	item, err := tx.Get([]byte(manifestKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var manifest *core.Manifest
	err = item.Value(func(val []byte) error {
		var err error
		manifest, err = storage.UnmarshalManifest(val)
		return err
	})
	return manifest, err
}
