// Package config loads, validates, and persists ragcore configuration.
// Settings come from a YAML file overlaid with RAGCORE_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultPath is the conventional config file location.
const DefaultPath = ".ragcore.yml"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. A double underscore in the variable name
// descends into a section: RAGCORE_SERVER__ADDR sets server.addr.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider("RAGCORE_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "RAGCORE_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderOpenAI:    true,
	ProviderAnthropic: true,
	ProviderOllama:    true,
}

// Validate checks that the configuration contains valid values. Invalid
// chunking or context settings are rejected here so the pipeline never
// starts with parameters it cannot honor.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of openai, anthropic, ollama", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if c.EmbeddingProvider != "" && !validProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q", c.EmbeddingProvider)
	}
	if c.EmbeddingProvider == ProviderAnthropic {
		return fmt.Errorf("embedding_provider anthropic is not supported: use openai or ollama")
	}

	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be non-negative")
	}

	ch := c.Chunking
	if ch.ChunkSizeTokens <= 0 {
		return fmt.Errorf("chunking.chunk_size_tokens must be positive")
	}
	if ch.OverlapTokens < 0 {
		return fmt.Errorf("chunking.overlap_tokens must be non-negative")
	}
	if ch.OverlapTokens >= ch.ChunkSizeTokens {
		return fmt.Errorf("chunking.overlap_tokens (%d) must be smaller than chunk_size_tokens (%d)",
			ch.OverlapTokens, ch.ChunkSizeTokens)
	}
	if ch.MinChunkTokens < 0 {
		return fmt.Errorf("chunking.min_chunk_tokens must be non-negative")
	}
	if ch.MaxChunkTokens > 0 && ch.MaxChunkTokens < ch.ChunkSizeTokens {
		return fmt.Errorf("chunking.max_chunk_tokens (%d) must be at least chunk_size_tokens (%d)",
			ch.MaxChunkTokens, ch.ChunkSizeTokens)
	}

	if c.Context.MaxContextTokens <= 500 {
		return fmt.Errorf("context.max_context_tokens must exceed the 500-token response reserve")
	}

	if c.Retrieval.MaxChunks < 0 {
		return fmt.Errorf("retrieval.max_chunks must be non-negative")
	}
	if s := c.Retrieval.Strategy; s != "" && s != "semantic" {
		return fmt.Errorf("invalid retrieval.strategy %q: only semantic is supported", s)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}

	return nil
}

// ValidateCredentials checks that the API key for the configured provider
// is present in the environment. Ollama needs no key.
func (c *Config) ValidateCredentials() error {
	for _, p := range []ProviderType{c.Provider, c.EmbeddingProvider} {
		envVar := APIKeyEnvVar(p)
		if envVar == "" {
			continue
		}
		if os.Getenv(envVar) == "" {
			return fmt.Errorf("%s is not set: required for provider %s", envVar, p)
		}
	}
	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderOpenAI,
		Model:             "gpt-4o",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		RequestsPerMinute: 0,
		Chunking: ChunkingConfig{
			ChunkSizeTokens:   512,
			OverlapTokens:     64,
			MinChunkTokens:    32,
			MaxChunkTokens:    1024,
			RespectSentences:  true,
			RespectParagraphs: false,
		},
		Context: ContextConfig{
			MaxContextTokens: 8192,
		},
		Retrieval: RetrievalConfig{
			MaxChunks: 5,
			Strategy:  "semantic",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Storage: StorageConfig{
			DatabasePath: "ragcore.db",
			VectorPath:   "ragcore.vectors",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// modelPresets maps each provider to its default chat and embedding models.
var modelPresets = map[ProviderType]struct {
	Model          string
	EmbeddingModel string
}{
	ProviderOpenAI:    {Model: "gpt-4o", EmbeddingModel: "text-embedding-3-small"},
	ProviderAnthropic: {Model: "claude-sonnet-4-5-20250929", EmbeddingModel: "text-embedding-3-small"},
	ProviderOllama:    {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
}

// embeddingProviderFor returns the default embedding provider for a given
// LLM provider. Anthropic has no embedding API, so OpenAI covers it.
func embeddingProviderFor(p ProviderType) ProviderType {
	if p == ProviderOllama {
		return ProviderOllama
	}
	return ProviderOpenAI
}
