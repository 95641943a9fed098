package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/poiesic/dossier/core"
)

// DefaultSource is the provenance tag attached to payloads that name none.
const DefaultSource = "external"

// DocumentIndex is the write side of the vector index used by a Gate.
type DocumentIndex interface {
	AddDocuments(ctx context.Context, docs []core.Document) ([]*core.Entry, error)
	Save(ctx context.Context) error
}

// Gate normalizes payloads and appends them to an index.
// It is safe for concurrent use; the index serializes writers.
type Gate struct {
	index      DocumentIndex
	source     string
	processors []processor
	logger     *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate) error

// WithSource sets the provenance tag attached to payloads without one.
// Default is DefaultSource.
func WithSource(tag string) Option {
	return func(g *Gate) error {
		g.source = tag
		return nil
	}
}

// WithChunking splits contents longer than size characters into chunks that
// overlap by overlap characters.
func WithChunking(size, overlap int) Option {
	return func(g *Gate) error {
		if size < 1 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		if overlap < 0 || overlap >= size {
			return fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
		}
		g.processors = append(g.processors, newChunker(size, overlap))
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// NewGate creates a gate in front of index.
func NewGate(index DocumentIndex, opts ...Option) (*Gate, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}

	g := &Gate{
		index:  index,
		source: DefaultSource,
		logger: slog.Default().With("component", "ingestion"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Rejection records a payload that was not ingested.
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Report summarizes one Ingest call.
type Report struct {
	// Batch is recorded in the ingest_batch metadata of every accepted document.
	Batch    string      `json:"batch"`
	Accepted int         `json:"accepted"`
	Rejected []Rejection `json:"rejected,omitempty"`
	// Entries are the index entries created, in insertion order.
	Entries []*core.Entry `json:"-"`
}

// Ingest normalizes payloads and appends the valid ones to the index in
// payload order, then saves the index.
//
// Invalid payloads are logged and reported but do not fail the call. A
// failure to append or save is returned and nothing from the call is
// reported as accepted.
func (g *Gate) Ingest(ctx context.Context, payloads []Payload) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Batch: uuid.NewString()}
	docs := make([]core.Document, 0, len(payloads))
	for i, p := range payloads {
		prepared, err := g.prepare(p, report.Batch)
		if err != nil {
			g.logger.Warn("rejected document", "position", i, "err", err)
			report.Rejected = append(report.Rejected, Rejection{Index: i, Reason: err.Error()})
			continue
		}
		docs = append(docs, prepared...)
	}

	if len(docs) == 0 {
		g.logger.Debug("nothing to ingest", "batch", report.Batch, "rejected", len(report.Rejected))
		return report, nil
	}

	entries, err := g.index.AddDocuments(ctx, docs)
	if err != nil {
		g.logger.Error("error appending documents", "batch", report.Batch, "count", len(docs), "err", err)
		return nil, fmt.Errorf("appending documents: %w", err)
	}
	if err := g.index.Save(ctx); err != nil {
		g.logger.Error("error saving index", "batch", report.Batch, "err", err)
		return nil, fmt.Errorf("saving index: %w", err)
	}

	report.Accepted = len(entries)
	report.Entries = entries
	g.logger.Info("ingested documents", "batch", report.Batch, "count", len(entries), "rejected", len(report.Rejected))
	return report, nil
}

// IngestDocuments ingests documents that are already normalized.
func (g *Gate) IngestDocuments(ctx context.Context, docs []core.Document) (*Report, error) {
	payloads := make([]Payload, len(docs))
	for i, d := range docs {
		payloads[i] = Text(d.Content, d.Metadata)
	}
	return g.Ingest(ctx, payloads)
}

// prepare normalizes one payload and runs it through the processors.
func (g *Gate) prepare(p Payload, batch string) ([]core.Document, error) {
	doc, err := normalize(p, g.source)
	if err != nil {
		return nil, err
	}
	doc.Metadata[core.MetaBatch] = batch

	docs := []core.Document{doc}
	for _, proc := range g.processors {
		var next []core.Document
		for _, d := range docs {
			out, err := proc.process(d)
			if err != nil {
				return nil, err
			}
			next = append(next, out...)
		}
		docs = next
	}
	// Tagging and chunking add metadata, so check the final documents too.
	for i := range docs {
		if err := core.ValidateDocument(&docs[i]); err != nil {
			return nil, err
		}
	}
	return docs, nil
}
