package reindex

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/storage/badger"
	"github.com/stretchr/testify/require"
)

func newMemoryRepository(t *testing.T) *badger.Repository {
	t.Helper()
	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// seedRepository writes n entries with the given model and dimension
// directly into repo, bypassing the index.
func seedRepository(t *testing.T, repo *badger.Repository, model string, dim, n int) []*core.Entry {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := make([]*core.Entry, n)
	for i := range n {
		vec := make([]float32, dim)
		vec[i%dim] = 1
		entries[i] = &core.Entry{
			Seq:        uint64(i + 1),
			Vector:     vec,
			Document:   core.NewDocument(contentFor(i), map[string]string{core.MetaSource: "test"}),
			InsertedAt: start.Add(time.Duration(i) * time.Hour),
		}
	}
	manifest := &core.Manifest{
		Version:   core.ManifestVersion,
		Dimension: dim,
		Model:     model,
		Metric:    core.MetricCosine,
		Count:     uint64(n),
		CreatedAt: start,
		UpdatedAt: start,
	}
	require.NoError(t, repo.AppendEntries(context.Background(), manifest, entries...))
	return entries
}

func contentFor(i int) string {
	topics := []string{
		"revenue growth accelerated",
		"risk factors include supply chain disruption",
		"market competition intensified",
		"dividend policy unchanged",
		"guidance raised for the full year",
	}
	return topics[i%len(topics)] + " " + string(rune('a'+i%26))
}
