package dossier

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/ai/local"
	"github.com/poiesic/dossier/ai/mock"
	"github.com/poiesic/dossier/answer"
	"github.com/poiesic/dossier/config"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Index.Path = filepath.Join(t.TempDir(), "vector_db")
	cfg.Embedding.Dimension = 128
	cfg.Workers.PoolSize = 2
	return cfg
}

// localProvider pairs the hashing embedder with a mock generator.
func localProvider(t *testing.T, dim int, gen *mock.MockGenerator) ai.AIProvider {
	t.Helper()
	embedder, err := local.NewEmbedder(dim)
	require.NoError(t, err)
	provider, err := ai.Compose(embedder, gen)
	require.NoError(t, err)
	return provider
}

func openEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := Open(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpen(t *testing.T) {
	t.Run("creates seeded index", func(t *testing.T) {
		e := openEngine(t, testConfig(t))

		stats := e.Stats()
		assert.Equal(t, 1, stats.Count)
		assert.Equal(t, 128, stats.Dimension)
		assert.Equal(t, core.MetricCosine, stats.Metric)
		assert.NotNil(t, e.retriever)
		assert.NotNil(t, e.composer)
		assert.NotNil(t, e.gate)
		assert.NotNil(t, e.pool)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := Open(context.Background(), nil)
		assert.Equal(t, ErrConfigRequired, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Retrieval.K = 0
		_, err := Open(context.Background(), cfg)
		require.Error(t, err)
	})

	t.Run("chromem backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Index.Backend = config.BackendChromem
		e := openEngine(t, cfg)
		assert.Equal(t, 1, e.Stats().Count)
	})
}

func TestOpen_ReloadsPersistedIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	e, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, err = e.Ingest(ctx, []ingestion.Payload{ingestion.Text("ACME opened a new fab in Ohio", nil)})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	reopened := openEngine(t, cfg)
	assert.Equal(t, 2, reopened.Stats().Count)

	matches, err := reopened.Retrieve(ctx, "ACME fab Ohio", QueryOptions{K: 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "ACME opened a new fab in Ohio", matches[0].Entry.Document.Content)
}

func TestOpen_EmbedderMismatch(t *testing.T) {
	cfg := testConfig(t)
	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	cfg.Embedding.Dimension = 64
	_, err = Open(context.Background(), cfg)
	require.ErrorIs(t, err, core.ErrEmbedderMismatch)
}

func TestQuery_WithoutCredentialIsDegraded(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t))

	_, err := e.Ingest(ctx, []ingestion.Payload{
		ingestion.Text("Chip shortage eases http://news.example.com/chips", map[string]string{core.MetaSource: core.SourceNews}),
	})
	require.NoError(t, err)

	result, err := e.Query(ctx, "Is the chip shortage easing?", QueryOptions{K: 1})
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, answer.UnavailableAnswer, result.Answer)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "Chip shortage eases", result.Sources[0].Title)
	assert.Equal(t, "http://news.example.com/chips", result.Sources[0].URL)
}

func TestQuery_ComposesFromRetrievedDocuments(t *testing.T) {
	ctx := context.Background()
	gen := mock.NewMockGenerator()
	gen.Answer = "ACME's cloud revenue rose 30% year over year."
	e := openEngine(t, testConfig(t), WithProvider(localProvider(t, 128, gen)))

	_, err := e.Ingest(ctx, []ingestion.Payload{
		{Content: "ACME Q2 2024 earnings call: cloud revenue rose 30 percent", Metadata: map[string]any{
			core.MetaSource:  core.SourceTranscript,
			core.MetaCompany: "ACME",
			core.MetaQuarter: "Q2",
			core.MetaYear:    2024,
		}},
		ingestion.Text("Globex announces new CEO", nil),
	})
	require.NoError(t, err)

	result, err := e.Query(ctx, "How did ACME cloud revenue develop?", QueryOptions{K: 1})
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.Equal(t, gen.Answer, result.Answer)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, core.SourceTypeTranscript, result.Sources[0].Type)
	assert.Equal(t, "ACME Q2 2024 earnings call", result.Sources[0].Title)

	assert.Equal(t, 1, gen.CallCount())
	assert.Contains(t, gen.LastPrompt(), "cloud revenue rose 30 percent")
	assert.Contains(t, gen.LastPrompt(), "How did ACME cloud revenue develop?")
}

func TestQuery_Filters(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	e := openEngine(t, testConfig(t), WithClock(clock), WithProvider(localProvider(t, 128, mock.NewMockGenerator())))

	_, err := e.Ingest(ctx, []ingestion.Payload{
		ingestion.Text("ACME revenue outlook raised", map[string]string{core.MetaCompany: "ACME"}),
	})
	require.NoError(t, err)
	advance(72 * time.Hour)
	_, err = e.Ingest(ctx, []ingestion.Payload{
		ingestion.Text("ACME revenue outlook cut", map[string]string{core.MetaCompany: "ACME"}),
		ingestion.Text("Globex revenue outlook cut", map[string]string{core.MetaCompany: "Globex"}),
	})
	require.NoError(t, err)

	t.Run("lookback", func(t *testing.T) {
		matches, err := e.Retrieve(ctx, "ACME revenue outlook", QueryOptions{K: 10, Lookback: 24 * time.Hour})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		for _, m := range matches {
			assert.Contains(t, m.Entry.Document.Content, "cut")
		}
	})

	t.Run("where", func(t *testing.T) {
		matches, err := e.Retrieve(ctx, "revenue outlook", QueryOptions{K: 10, Where: map[string]string{core.MetaCompany: "ACME"}})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		for _, m := range matches {
			assert.Equal(t, "ACME", m.Entry.Document.Metadata[core.MetaCompany])
		}
	})

	t.Run("zero options match everything", func(t *testing.T) {
		matches, err := e.Retrieve(ctx, "revenue outlook", QueryOptions{K: 10})
		require.NoError(t, err)
		assert.Len(t, matches, 4)
	})

	t.Run("query honors filters", func(t *testing.T) {
		result, err := e.Query(ctx, "Globex outlook", QueryOptions{K: 10, Where: map[string]string{core.MetaCompany: "Globex"}})
		require.NoError(t, err)
		require.Len(t, result.Sources, 1)
		assert.Equal(t, "Globex revenue outlook cut", result.Sources[0].Content)
	})
}

func TestQuery_Errors(t *testing.T) {
	e := openEngine(t, testConfig(t))

	t.Run("blank question", func(t *testing.T) {
		_, err := e.Query(context.Background(), "  ", QueryOptions{})
		require.Error(t, err)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.Query(ctx, "anything", QueryOptions{})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestQuery_BusyWhenQueueFull(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	gen := &mock.MockGenerator{GenerateFunc: func(ctx context.Context, _ string) (string, error) {
		started <- struct{}{}
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}

	cfg := testConfig(t)
	cfg.Workers.PoolSize = 1
	cfg.Workers.QueueDepth = 1
	e := openEngine(t, cfg, WithProvider(localProvider(t, 128, gen)))

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := e.Query(ctx, "first question", QueryOptions{})
		assert.NoError(t, err)
	}()
	<-started

	go func() {
		defer wg.Done()
		_, err := e.Query(ctx, "second question", QueryOptions{})
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return e.pool.Waiting() == 1 }, 5*time.Second, 5*time.Millisecond)

	_, err := e.Query(ctx, "third question", QueryOptions{})
	require.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()
}

func TestIngestDocuments(t *testing.T) {
	e := openEngine(t, testConfig(t))

	report, err := e.IngestDocuments(context.Background(), []core.Document{
		core.NewDocument("Initech files 10-K", map[string]string{core.MetaCompany: "Initech"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 2, e.Stats().Count)
}

func TestClose(t *testing.T) {
	gen := mock.NewMockGenerator()
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedderWithDimension(16), gen)
	e, err := Open(context.Background(), testConfig(t), WithProvider(provider))
	require.NoError(t, err)

	require.NoError(t, e.Close())
	assert.True(t, provider.(*mock.MockProvider).Closed())

	// Idempotent.
	require.NoError(t, e.Close())

	_, err = e.Query(context.Background(), "after close", QueryOptions{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestRetrieve_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t))

	_, err := e.Ingest(ctx, []ingestion.Payload{
		ingestion.Text("Initech misses revenue guidance", map[string]string{core.MetaCompany: "Initech"}),
	})
	require.NoError(t, err)

	matches, err := e.Retrieve(ctx, "Initech revenue guidance", QueryOptions{K: 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	matches[0].Entry.Document.Metadata[core.MetaCompany] = "Globex"
	matches[0].Entry.Vector[0] = 42

	again, err := e.Retrieve(ctx, "Initech revenue guidance", QueryOptions{K: 1})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "Initech", again[0].Entry.Document.Metadata[core.MetaCompany])
	assert.NotEqual(t, float32(42), again[0].Entry.Vector[0])
	assert.Equal(t, matches[0].Distance, again[0].Distance)
}

func TestClose_RejectsLaterCalls(t *testing.T) {
	e, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Retrieve(context.Background(), "after close", QueryOptions{})
	require.ErrorIs(t, err, ErrClosed)

	_, err = e.Ingest(context.Background(), []ingestion.Payload{ingestion.Text("late filing", nil)})
	require.ErrorIs(t, err, ErrClosed)
}

func TestRepositoryOpener(t *testing.T) {
	for _, backend := range []config.Backend{config.BackendBadger, config.BackendChromem} {
		t.Run(string(backend), func(t *testing.T) {
			open, err := RepositoryOpener(backend)
			require.NoError(t, err)
			repo, err := open(filepath.Join(t.TempDir(), "store"))
			require.NoError(t, err)
			assert.NoError(t, repo.Close())
		})
	}

	_, err := RepositoryOpener("sqlite")
	require.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	t.Run("local embedder without credential", func(t *testing.T) {
		cfg := testConfig(t)
		provider, err := NewProvider(context.Background(), cfg)
		require.NoError(t, err)
		defer provider.Close()

		assert.Equal(t, 128, provider.Embedder().Dimension())
		_, err = provider.Generator().Generate(context.Background(), "prompt")
		require.ErrorIs(t, err, core.ErrBackendUnavailable)
		assert.True(t, errors.Is(err, ai.ErrMissingCredential))
	})

	t.Run("unreachable embedding service", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Embedding.Provider = string(ai.EmbeddingOpenAI)
		cfg.Embedding.Host = "http://127.0.0.1:1"
		_, err := NewProvider(context.Background(), cfg)
		require.ErrorIs(t, err, core.ErrModelUnavailable)
	})
}
