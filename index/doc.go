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


// Package index implements the append-only vector index.
//
// An Index keeps every entry in memory for brute-force cosine search and
// persists entries through a storage.EntryRepository. Appends are serialized
// and committed in one repository transaction per call; searches run
// concurrently against an immutable prefix of the entry slice and never see a
// half-applied append.
//
// Open implements the startup policy: load the persisted index, or quarantine
// whatever is at the path and create a fresh index seeded with a single
// placeholder document.
package index
