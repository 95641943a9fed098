package search

import (
	"github.com/poiesic/dossier/core"
)

// RetrievalMonitor provides hooks to observe the retrieval process.
// Implement this interface to trace intermediate steps, for example in a
// debugging tool.
type RetrievalMonitor interface {
	Start(query string, k int, filter *core.Filter)
	AfterEmbedding(vector []float32, cached bool)
	AfterSearch(matches []core.Match)
	Finish(docs []core.Document)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int, _ *core.Filter) {}
func (n *noopMonitor) AfterEmbedding(_ []float32, _ bool)     {}
func (n *noopMonitor) AfterSearch(_ []core.Match)             {}
func (n *noopMonitor) Finish(_ []core.Document)               {}
