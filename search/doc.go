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


// Package search retrieves the documents most relevant to a query.
//
// A Retriever embeds the query text with the same embedder that built the
// index, asks the index for the nearest entries and returns their documents
// in similarity order. Retrieval is read-only.
//
// Results can be narrowed with a core.Filter: Since keeps documents ingested
// at or after an instant (the lookback window), Where keeps documents whose
// metadata matches every given pair. Recently used query embeddings are kept
// in an LRU cache so repeated questions skip the embedder.
package search
