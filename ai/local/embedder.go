package local

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"unicode"

	"github.com/poiesic/dossier/ai"
)

const (
	unigramWeight = 1.0
	bigramWeight  = 0.5
)

// Embedder implements ai.Embedder with signed feature hashing over word
// unigrams and bigrams. It needs no model files or network access, and
// identical input always yields an identical unit vector.
type Embedder struct {
	dimension int
	logger    *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(dimension int) (*Embedder, error) {
	if dimension < 1 {
		return nil, fmt.Errorf("local embedder: dimension must be positive, got %d", dimension)
	}
	return &Embedder{
		dimension: dimension,
		logger:    slog.Default().With("component", "local-embedder"),
	}, nil
}

// NewEmbedder creates a hashing embedder producing vectors of the given width.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(dimension int) (ai.Embedder, error) {
	return newEmbedder(dimension)
}

// EmbedText generates a vector embedding for a single text string.
// It goes through EmbedTexts so both call paths share one implementation.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

// Dimension returns the vector width.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Model identifies the hashing scheme and width.
func (e *Embedder) Model() string {
	return fmt.Sprintf("local-hash-v1-%d", e.dimension)
}

func (e *Embedder) embed(text string) []float32 {
	vector := make([]float32, e.dimension)
	terms := Terms(text)
	for i, term := range terms {
		e.accumulate(vector, term, unigramWeight)
		if i > 0 {
			e.accumulate(vector, terms[i-1]+" "+term, bigramWeight)
		}
	}
	return ai.NormalizeVector(vector)
}

func (e *Embedder) accumulate(vector []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(e.dimension)
	if sum>>63 == 1 {
		weight = -weight
	}
	vector[bucket] += weight
}

// Terms lowercases text, splits it into words, drops stop words and reduces
// plural forms so that "risks" and "risk" share a feature.
func Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		terms = append(terms, stem(w))
	}
	return terms
}

func stem(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") &&
		!strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		return w[:len(w)-1]
	}
	return w
}

var stopWords = func() map[string]struct{} {
	words := []string{
		"a", "about", "all", "also", "an", "and", "any", "are", "as", "at",
		"be", "been", "but", "by", "can", "could", "did", "do", "does", "for",
		"from", "had", "has", "have", "how", "i", "if", "in", "into", "is",
		"it", "its", "me", "more", "most", "my", "no", "not", "of", "on",
		"or", "our", "so", "some", "such", "than", "that", "the", "their",
		"them", "then", "there", "these", "they", "this", "those", "to", "up",
		"us", "was", "we", "were", "what", "when", "where", "which", "who",
		"why", "will", "with", "would", "you", "your",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
