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

import (
	"fmt"
	"math"
	"strings"
)

// ReservedMetaPrefix marks metadata keys storage backends use for their own
// bookkeeping. Documents may not carry keys with this prefix.
const ReservedMetaPrefix = "_dossier_"

// MaxMetadataKeys bounds the number of metadata keys on one document.
const MaxMetadataKeys = 1 << 12

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Content must contain at least one non-whitespace character
//   - Metadata keys must not start with ReservedMetaPrefix
//   - Metadata holds at most MaxMetadataKeys keys
//
// NOT validated:
//   - Metadata values (free-form, meaning is owned by the producer)
//   - ID (recomputed from content by NewDocument)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	if len(doc.Metadata) > MaxMetadataKeys {
		return fmt.Errorf("%w: %d metadata keys, at most %d allowed",
			ErrInvalidDocument, len(doc.Metadata), MaxMetadataKeys)
	}
	for k := range doc.Metadata {
		if strings.HasPrefix(k, ReservedMetaPrefix) {
			return fmt.Errorf("%w: metadata key %q is reserved", ErrInvalidDocument, k)
		}
	}

	return nil
}

// ValidateVector checks that a vector has the expected dimension and
// contains only finite components.
func ValidateVector(vector []float32, dimension int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if dimension > 0 && len(vector) != dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dimension, len(vector))
	}
	for i, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("vector component %d is not finite", i)
		}
	}
	return nil
}
