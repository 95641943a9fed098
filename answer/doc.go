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


// Package answer composes grounded answers from retrieved documents.
//
// A Composer packs documents into a bounded context block in retrieval
// order, renders the instruction template, asks the backend for an answer
// and attributes the documents that made it into the context:
//
//	composer, err := answer.NewComposer(generator)
//	result, err := composer.Compose(ctx, "What are the risks?", docs)
//
// Backend failures never surface as errors. They produce a degraded
// core.QueryResult with a diagnostic and the built context preserved.
package answer
