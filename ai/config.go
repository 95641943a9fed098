// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"
)

// EmbeddingProvider selects the embedding implementation.
type EmbeddingProvider string

const (
	// EmbeddingLocal uses the in-process feature-hashing embedder.
	EmbeddingLocal EmbeddingProvider = "local"
	// EmbeddingOpenAI uses an OpenAI-compatible /v1/embeddings endpoint.
	EmbeddingOpenAI EmbeddingProvider = "openai"
)

// Defaults for the language-model backend.
const (
	DefaultBackendHost  = "https://api.groq.com/openai/v1"
	DefaultBackendModel = "llama-3.1-70b-versatile"
	DefaultDimension    = 384
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingProvider selects the embedder implementation.
	// Default: "local"
	EmbeddingProvider EmbeddingProvider

	// EmbeddingHost is the base URL for the embedding service API.
	// Only used by the "openai" embedding provider.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "nomic-embed-text", "text-embedding-3-small"
	EmbeddingModel string

	// EmbeddingAPIKey authenticates against the embedding service.
	// Local OpenAI-compatible servers usually accept any value.
	EmbeddingAPIKey string

	// EmbeddingDimension is the vector width of the local embedder.
	// Default: 384
	EmbeddingDimension int

	// BackendHost is the base URL of the OpenAI-compatible chat completion API
	// used to compose answers.
	// Default: "https://api.groq.com/openai/v1"
	BackendHost string

	// BackendModel is the chat model used to compose answers.
	// Default: "llama-3.1-70b-versatile"
	BackendModel string

	// BackendAPIKey is the backend credential. An empty key does not prevent
	// loading, searching or ingesting; only answer composition fails.
	BackendAPIKey string

	// Temperature is the sampling temperature for answer composition.
	// Default: 0.3
	Temperature float64

	// MaxTokens caps the length of composed answers.
	// Default: 2048
	MaxTokens int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingProvider selects the embedding implementation.
func WithEmbeddingProvider(provider EmbeddingProvider) ConfigOption {
	return func(c *Config) {
		c.EmbeddingProvider = provider
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithBackendHost sets the answer backend host URL.
func WithBackendHost(host string) ConfigOption {
	return func(c *Config) {
		c.BackendHost = host
	}
}

// WithHost sets both embedding and backend hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.BackendHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEmbeddingAPIKey sets the embedding service credential.
func WithEmbeddingAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingAPIKey = key
	}
}

// WithEmbeddingDimension sets the vector width of the local embedder.
func WithEmbeddingDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingDimension = dim
	}
}

// WithBackendModel sets the answer backend model identifier.
func WithBackendModel(model string) ConfigOption {
	return func(c *Config) {
		c.BackendModel = model
	}
}

// WithBackendAPIKey sets the backend credential.
func WithBackendAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.BackendAPIKey = key
	}
}

// WithTemperature sets the sampling temperature for answer composition.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithMaxTokens sets the answer length cap.
func WithMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// DefaultConfig returns a Config with sensible defaults: a local embedder and
// a Groq-hosted backend.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingProvider:  EmbeddingLocal,
		EmbeddingHost:      "http://localhost:11434/v1",
		EmbeddingModel:     "nomic-embed-text",
		EmbeddingDimension: DefaultDimension,
		BackendHost:        DefaultBackendHost,
		BackendModel:       DefaultBackendModel,
		Temperature:        0.3,
		MaxTokens:          2048,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingProvider(EmbeddingOpenAI),
//	    WithEmbeddingHost("http://localhost:11434"),
//	    WithBackendAPIKey(os.Getenv("GROQ_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, Groq).
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.BackendHost = normalizeHost(c.BackendHost)
	c.EmbeddingProvider = EmbeddingProvider(strings.ToLower(string(c.EmbeddingProvider)))
	c.BackendAPIKey = strings.TrimSpace(c.BackendAPIKey)
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// HasBackendCredential reports whether a backend API key is configured.
func (c *Config) HasBackendCredential() bool {
	return strings.TrimSpace(c.BackendAPIKey) != ""
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
// A missing backend credential is not a validation error.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.EmbeddingProvider {
	case EmbeddingLocal:
		if c.EmbeddingDimension < 1 {
			return errors.New("ai config: EmbeddingDimension must be positive")
		}
	case EmbeddingOpenAI:
		if c.EmbeddingHost == "" {
			return errors.New("ai config: EmbeddingHost is required")
		}
		if c.EmbeddingModel == "" {
			return errors.New("ai config: EmbeddingModel is required")
		}
	default:
		return errors.New("ai config: EmbeddingProvider must be one of local, openai")
	}

	if c.BackendHost == "" {
		return errors.New("ai config: BackendHost is required")
	}
	if c.BackendModel == "" {
		return errors.New("ai config: BackendModel is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxTokens < 1 {
		return errors.New("ai config: MaxTokens must be positive")
	}
	return nil
}
