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


package core

import "errors"

// Pipeline error taxonomy
var (
	// ErrModelUnavailable indicates the embedding or backend model could not be initialized.
	// It is fatal at startup.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrIndexLoad indicates a persisted index is missing or corrupt.
	// Callers recover by creating a fresh index.
	ErrIndexLoad = errors.New("index load failed")

	// ErrEmbedderMismatch indicates a persisted index was built by a different
	// embedding provider than the one currently configured.
	ErrEmbedderMismatch = errors.New("index was built with a different embedder")

	// ErrBackendUnavailable indicates the language-model backend call failed or timed out.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrMalformedResponse indicates the backend returned a response with no usable answer.
	ErrMalformedResponse = errors.New("malformed backend response")

	// ErrInvalidDocument indicates an ingestion payload failed validation.
	ErrInvalidDocument = errors.New("invalid document")
)

// Domain validation errors
var (
	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrDimensionMismatch indicates a vector does not have the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyVector indicates a vector has no components.
	ErrEmptyVector = errors.New("vector cannot be empty")
)
