package ingestion

import (
	"maps"
	"strconv"
	"strings"

	"github.com/poiesic/dossier/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// chunker splits long documents into overlapping chunks.
type chunker struct {
	size     int
	splitter textsplitter.TextSplitter
}

func newChunker(size, overlap int) *chunker {
	return &chunker{
		size: size,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}
}

// process returns doc unchanged when it fits in one chunk. Otherwise every
// chunk inherits doc's metadata plus its 1-based position and the total.
func (c *chunker) process(doc core.Document) ([]core.Document, error) {
	if len([]rune(doc.Content)) <= c.size {
		return []core.Document{doc}, nil
	}

	parts, err := c.splitter.SplitText(doc.Content)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	if len(chunks) <= 1 {
		return []core.Document{doc}, nil
	}

	docs := make([]core.Document, len(chunks))
	for i, text := range chunks {
		metadata := maps.Clone(doc.Metadata)
		if metadata == nil {
			metadata = make(map[string]string, 2)
		}
		metadata[core.MetaChunk] = strconv.Itoa(i + 1)
		metadata[core.MetaChunks] = strconv.Itoa(len(chunks))
		docs[i] = core.NewDocument(text, metadata)
	}
	return docs, nil
}
