package config

import "time"

// Backend names the Document Store implementation.
type Backend string

const (
	BackendBadger  Backend = "badger"
	BackendChromem Backend = "chromem"
)

// Config is the top-level dossier configuration, corresponding to dossier.yml.
type Config struct {
	Index     IndexConfig     `yaml:"index" koanf:"index"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Backend   BackendConfig   `yaml:"backend" koanf:"backend"`
	Retrieval RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	Answer    AnswerConfig    `yaml:"answer" koanf:"answer"`
	Ingestion IngestionConfig `yaml:"ingestion" koanf:"ingestion"`
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Workers   WorkersConfig   `yaml:"workers" koanf:"workers"`
}

// IndexConfig locates the persisted index.
type IndexConfig struct {
	Path      string  `yaml:"path" koanf:"path"`
	Backend   Backend `yaml:"backend" koanf:"backend"`
	Seed      string  `yaml:"seed" koanf:"seed"`
	BatchSize int     `yaml:"batch_size" koanf:"batch_size"`
}

// EmbeddingConfig selects the Embedding Provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" koanf:"provider"`
	Host      string `yaml:"host" koanf:"host"`
	Model     string `yaml:"model" koanf:"model"`
	Dimension int    `yaml:"dimension" koanf:"dimension"`
	APIKey    string `yaml:"api_key" koanf:"api_key"`
}

// BackendConfig configures the language-model backend used for answers.
type BackendConfig struct {
	Host        string        `yaml:"host" koanf:"host"`
	Model       string        `yaml:"model" koanf:"model"`
	APIKey      string        `yaml:"api_key" koanf:"api_key"`
	Temperature float64       `yaml:"temperature" koanf:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" koanf:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" koanf:"timeout"`
}

// RetrievalConfig holds Retriever settings.
type RetrievalConfig struct {
	K         int `yaml:"k" koanf:"k"`
	CacheSize int `yaml:"cache_size" koanf:"cache_size"`
}

// AnswerConfig holds Answer Composer settings.
type AnswerConfig struct {
	MaxContextChars int `yaml:"max_context_chars" koanf:"max_context_chars"`
}

// IngestionConfig holds Ingestion Gate settings.
type IngestionConfig struct {
	Source       string `yaml:"source" koanf:"source"`
	ChunkSize    int    `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap" koanf:"chunk_overlap"`
}

// ServerConfig holds HTTP surface settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" koanf:"addr"`
	AllowAllOrigins bool          `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
}

// WorkersConfig sizes the query worker pool.
type WorkersConfig struct {
	PoolSize   int `yaml:"pool_size" koanf:"pool_size"`
	QueueDepth int `yaml:"queue_depth" koanf:"queue_depth"`
}
