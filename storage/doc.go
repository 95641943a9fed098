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



// Package storage provides the Document Store abstraction for dossier.
//
// This package defines the repository interface that decouples persistence
// from the vector index. Two backends implement it:
//
//   - storage/badger: BadgerDB, the default. One transaction per append.
//   - storage/chromem: a chromem-go persistent collection.
//
// # Constructor Return Type Pattern
//
// Public constructors return the storage.EntryRepository interface:
//
//	repo, err := badger.NewRepository("/path/to/vector_db")  // storage.EntryRepository
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Data Layout
//
// A repository holds one manifest (format version, vector dimension,
// embedding model, metric, entry count) and an ordered list of entries. Each
// entry stores the document text, its metadata, the insertion time and the
// vector as exact little-endian float32 bytes, so a reload reproduces the
// vectors bit for bit.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repo, err := badger.NewMemoryRepository()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
