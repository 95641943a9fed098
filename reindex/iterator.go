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


package reindex

import (
	"context"

	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/storage"
)

// DefaultBatchSize is the number of entries re-embedded per call.
const DefaultBatchSize = 100

// EntryIterator walks a repository's entries in Seq order, in batches.
type EntryIterator struct {
	repo      storage.EntryRepository
	batchSize int
}

// NewEntryIterator creates an iterator over repo.
// A batchSize of zero or less uses DefaultBatchSize.
func NewEntryIterator(repo storage.EntryRepository, batchSize int) *EntryIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &EntryIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of entries. Only one batch is held in
// memory at a time. Iteration stops on the first error from fn, and the
// context is checked between batches.
func (it *EntryIterator) ForEach(ctx context.Context, fn func([]*core.Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := make([]*core.Entry, 0, it.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = make([]*core.Entry, 0, it.batchSize)
		return ctx.Err()
	}

	err := it.repo.Entries(ctx, func(e *core.Entry) error {
		batch = append(batch, e)
		if len(batch) < it.batchSize {
			return nil
		}
		return flush()
	})
	if err != nil {
		return err
	}
	return flush()
}
