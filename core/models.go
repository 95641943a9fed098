package core

import (
	"encoding/binary"
	"maps"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for documents.
// It is derived from document content so identical text yields identical IDs.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Well-known metadata keys.
const (
	MetaSource  = "source"
	MetaCompany = "company"
	MetaYear    = "year"
	MetaQuarter = "quarter"
	MetaChunk   = "chunk"
	MetaChunks  = "chunks"
	MetaBatch   = "ingest_batch"
)

// Provenance tags recognized by source attribution.
const (
	SourceNews       = "news-provider"
	SourceTranscript = "transcript-provider"
	SourceInit       = "init"
)

// SeedContent is the placeholder document written into a freshly created index
// so the index is never empty.
const SeedContent = "Initialization document"

// Document is the immutable unit of retrievable knowledge.
type Document struct {
	ID       ID
	Content  string
	Metadata map[string]string
}

// NewDocument creates a Document with a content-derived ID.
// The metadata map is copied.
func NewDocument(content string, metadata map[string]string) Document {
	return Document{
		ID:       IDFromContent(content),
		Content:  content,
		Metadata: maps.Clone(metadata),
	}
}

// SeedDocument returns the placeholder document used to initialize an index.
func SeedDocument() Document {
	return NewDocument(SeedContent, map[string]string{MetaSource: SourceInit})
}

// Source returns the provenance tag of the document, or "" when absent.
func (d Document) Source() string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[MetaSource]
}

// Entry is a persisted vector entry: a document plus its embedding.
// Seq is assigned on append and defines insertion order.
type Entry struct {
	Seq        uint64
	Vector     []float32
	Document   Document
	InsertedAt time.Time
}

// Metric names the distance function an index was built for.
type Metric string

// MetricCosine is cosine distance, 1 - cos(a, b).
const MetricCosine Metric = "cosine"

// ManifestVersion is the current on-disk format version.
const ManifestVersion = 1

// Manifest describes a persisted index so that a load can validate it
// against the active embedding provider.
type Manifest struct {
	Version   int       `json:"version"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model"`
	Metric    Metric    `json:"metric"`
	Count     uint64    `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Match is a single search hit.
type Match struct {
	Entry    *Entry
	Distance float32
}

// Filter narrows a search to a subset of entries.
// A zero Filter matches everything.
type Filter struct {
	// Since keeps entries inserted at or after this instant. Zero disables the bound.
	Since time.Time
	// Where keeps entries whose metadata contains every key/value pair.
	Where map[string]string
}

// IsZero reports whether the filter matches every entry.
func (f *Filter) IsZero() bool {
	return f == nil || (f.Since.IsZero() && len(f.Where) == 0)
}

// Matches reports whether the entry passes the filter.
func (f *Filter) Matches(e *Entry) bool {
	if f == nil {
		return true
	}
	if !f.Since.IsZero() && e.InsertedAt.Before(f.Since) {
		return false
	}
	for k, v := range f.Where {
		if got, ok := e.Document.Metadata[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// SourceType classifies an attributed source.
type SourceType string

const (
	SourceTypeNews       SourceType = "news"
	SourceTypeTranscript SourceType = "transcript"
	SourceTypeDocument   SourceType = "document"
)

// SourceRef attributes part of an answer to a retrieved document.
// Structured sources fill Title, URL, Type and Source. Generic sources fill
// Title with a truncated preview and carry the full Content and Metadata.
type SourceRef struct {
	Title    string            `json:"title"`
	URL      string            `json:"url,omitempty"`
	Type     SourceType        `json:"type"`
	Source   string            `json:"source,omitempty"`
	Content  string            `json:"content,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// QueryResult is the answer to a question together with its sources.
type QueryResult struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
	// Degraded is set when the backend could not produce a grounded answer.
	Degraded bool `json:"degraded,omitempty"`
	// Diagnostic explains a degraded answer.
	Diagnostic string `json:"diagnostic,omitempty"`
	// Context is the context block that was sent (or would have been sent) to the backend.
	Context string `json:"-"`
}
