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


// Package ai provides abstractions for AI services used in Dossier.
//
// This package defines interfaces for text embeddings and answer generation.
// The index, retriever and composer depend on these abstractions rather than
// on concrete clients.
//
// # Interfaces
//
//   - Embedder: Generates fixed-width vector embeddings from text
//   - Generator: Sends a rendered prompt to a language-model backend
//   - AIProvider: Aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embedding and chat APIs via langchaingo
//   - ai/local: In-process feature-hashing embedder that needs no service
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, local.NewEmbedder, etc.) return
// INTERFACE types. Test utility constructors (mock.NewMockEmbedder,
// mock.NewMockGenerator) return CONCRETE types so tests can inject behavior
// and assert on call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithBackendAPIKey(os.Getenv("GROQ_API_KEY")))
//	provider, err := openai.NewProvider(ctx, config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "What are the risks?")
//	answer, err := provider.Generator().Generate(ctx, prompt)
package ai
