package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/poiesic/dossier/ai"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// sections: DOSSIER_BACKEND__API_KEY sets backend.api_key.
const EnvPrefix = "DOSSIER_"

// Conventional variables honored without the prefix.
const (
	EnvVectorDBPath = "VECTOR_DB_PATH"
	EnvGroqAPIKey   = "GROQ_API_KEY"
)

// DotEnvFile is loaded from the working directory before configuration is read.
const DotEnvFile = ".env"

// Load reads configuration in increasing order of precedence: defaults, the
// YAML file at path (skipped when path is empty or the file does not exist),
// the conventional variables, then DOSSIER_* overrides. Variables from a
// .env file in the working directory are visible unless already set.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvVectorDBPath); v != "" {
		if err := k.Set("index.path", v); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv(EnvGroqAPIKey); v != "" {
		if err := k.Set("backend.api_key", v); err != nil {
			return nil, err
		}
	}

	// Overlay environment variables: DOSSIER_RETRIEVAL__K -> retrieval.k, etc.
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// LoadDotEnv loads variables from the given files. Missing files are
// ignored and variables already present in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// WriteYAML writes the configuration with credentials masked.
func (c *Config) WriteYAML(w io.Writer) error {
	redacted := *c
	redacted.Embedding.APIKey = mask(c.Embedding.APIKey)
	redacted.Backend.APIKey = mask(c.Backend.APIKey)

	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return err
	}
	return enc.Close()
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// validBackends is the set of recognized Document Store values.
var validBackends = map[Backend]bool{
	BackendBadger:  true,
	BackendChromem: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Index.Path) == "" {
		return fmt.Errorf("index.path is required")
	}
	if !validBackends[c.Index.Backend] {
		return fmt.Errorf("invalid index.backend %q: must be one of badger, chromem", c.Index.Backend)
	}
	if strings.TrimSpace(c.Index.Seed) == "" {
		return fmt.Errorf("index.seed must not be empty")
	}
	if c.Index.BatchSize < 1 {
		return fmt.Errorf("index.batch_size must be positive")
	}

	if err := c.AIConfig().Validate(); err != nil {
		return err
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}

	if c.Retrieval.K < 1 {
		return fmt.Errorf("retrieval.k must be positive")
	}
	if c.Retrieval.CacheSize < 0 {
		return fmt.Errorf("retrieval.cache_size must be non-negative")
	}
	if c.Answer.MaxContextChars < 1 {
		return fmt.Errorf("answer.max_context_chars must be positive")
	}

	if c.Ingestion.ChunkSize < 0 {
		return fmt.Errorf("ingestion.chunk_size must be non-negative")
	}
	if c.Ingestion.ChunkSize > 0 && (c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize) {
		return fmt.Errorf("ingestion.chunk_overlap must be in [0, chunk_size)")
	}

	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("workers.pool_size must be positive")
	}
	if c.Workers.QueueDepth < 0 {
		return fmt.Errorf("workers.queue_depth must be non-negative")
	}
	return nil
}

// AIConfig returns the provider configuration derived from the embedding and
// backend sections.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingProvider(ai.EmbeddingProvider(c.Embedding.Provider)),
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithEmbeddingDimension(c.Embedding.Dimension),
		ai.WithEmbeddingAPIKey(c.Embedding.APIKey),
		ai.WithBackendHost(c.Backend.Host),
		ai.WithBackendModel(c.Backend.Model),
		ai.WithBackendAPIKey(c.Backend.APIKey),
		ai.WithTemperature(c.Backend.Temperature),
		ai.WithMaxTokens(c.Backend.MaxTokens),
	)
}
