package config

import (
	"runtime"
	"time"

	"github.com/poiesic/dossier/ai"
	"github.com/poiesic/dossier/answer"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/ingestion"
	"github.com/poiesic/dossier/search"
)

// DefaultIndexPath is where the index lives when nothing else is configured.
const DefaultIndexPath = "./vector_db"

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Path:      DefaultIndexPath,
			Backend:   BackendBadger,
			Seed:      core.SeedContent,
			BatchSize: 32,
		},
		Embedding: EmbeddingConfig{
			Provider:  string(ai.EmbeddingLocal),
			Host:      "http://localhost:11434/v1",
			Model:     "nomic-embed-text",
			Dimension: ai.DefaultDimension,
		},
		Backend: BackendConfig{
			Host:        ai.DefaultBackendHost,
			Model:       ai.DefaultBackendModel,
			Temperature: 0.3,
			MaxTokens:   2048,
			Timeout:     answer.DefaultTimeout,
		},
		Retrieval: RetrievalConfig{
			K:         search.DefaultK,
			CacheSize: search.DefaultCacheSize,
		},
		Answer: AnswerConfig{
			MaxContextChars: answer.DefaultMaxContextChars,
		},
		Ingestion: IngestionConfig{
			Source: ingestion.DefaultSource,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			RequestTimeout: 2 * time.Minute,
		},
		Workers: WorkersConfig{
			PoolSize:   runtime.NumCPU(),
			QueueDepth: 64,
		},
	}
}
