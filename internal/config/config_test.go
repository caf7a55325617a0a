package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Provider != ProviderOpenAI || cfg.Model != "gpt-4o" {
		t.Errorf("defaults: provider=%q model=%q", cfg.Provider, cfg.Model)
	}
	if cfg.Chunking.ChunkSizeTokens != 512 || cfg.Chunking.OverlapTokens != 64 {
		t.Errorf("chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Context.MaxContextTokens != 8192 {
		t.Errorf("context default: %d", cfg.Context.MaxContextTokens)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != ProviderOpenAI || cfg.Server.Addr != ":8080" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragcore.yml")

	cfg := DefaultConfig()
	cfg.Provider = ProviderOllama
	cfg.Model = "llama3"
	cfg.EmbeddingProvider = ProviderOllama
	cfg.EmbeddingModel = "nomic-embed-text"
	cfg.BaseURL = "http://localhost:11434"
	cfg.Chunking.ChunkSizeTokens = 256
	cfg.Server.Addr = ":9090"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Provider != ProviderOllama || got.Model != "llama3" {
		t.Errorf("provider round trip: %+v", got)
	}
	if got.BaseURL != "http://localhost:11434" {
		t.Errorf("base url: %q", got.BaseURL)
	}
	if got.Chunking.ChunkSizeTokens != 256 {
		t.Errorf("chunk size: %d", got.Chunking.ChunkSizeTokens)
	}
	if got.Server.Addr != ":9090" {
		t.Errorf("addr: %q", got.Server.Addr)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RAGCORE_MODEL", "gpt-4o-mini")
	t.Setenv("RAGCORE_SERVER__ADDR", ":3000")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("model override: %q", cfg.Model)
	}
	if cfg.Server.Addr != ":3000" {
		t.Errorf("nested override: %q", cfg.Server.Addr)
	}
	// Untouched settings keep their defaults.
	if cfg.Provider != ProviderOpenAI {
		t.Errorf("provider: %q", cfg.Provider)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragcore.yml")
	cfg := DefaultConfig()
	cfg.Model = "from-file"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Setenv("RAGCORE_MODEL", "from-env")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Model != "from-env" {
		t.Errorf("model: got %q, want env override", got.Model)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing provider", func(c *Config) { c.Provider = "" }, "provider is required"},
		{"unknown provider", func(c *Config) { c.Provider = "cohere" }, "invalid provider"},
		{"missing model", func(c *Config) { c.Model = "" }, "model is required"},
		{"anthropic embeddings", func(c *Config) { c.EmbeddingProvider = ProviderAnthropic }, "not supported"},
		{"negative rate limit", func(c *Config) { c.RequestsPerMinute = -1 }, "requests_per_minute"},
		{"zero chunk size", func(c *Config) { c.Chunking.ChunkSizeTokens = 0 }, "chunk_size_tokens"},
		{"negative overlap", func(c *Config) { c.Chunking.OverlapTokens = -1 }, "overlap_tokens"},
		{"overlap at chunk size", func(c *Config) { c.Chunking.OverlapTokens = c.Chunking.ChunkSizeTokens }, "must be smaller"},
		{"max below chunk size", func(c *Config) { c.Chunking.MaxChunkTokens = 100 }, "max_chunk_tokens"},
		{"context at reserve", func(c *Config) { c.Context.MaxContextTokens = 500 }, "response reserve"},
		{"negative max chunks", func(c *Config) { c.Retrieval.MaxChunks = -1 }, "max_chunks"},
		{"unknown strategy", func(c *Config) { c.Retrieval.Strategy = "hybrid" }, "only semantic"},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"missing db path", func(c *Config) { c.Storage.DatabasePath = "" }, "database_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := DefaultConfig()
	if err := cfg.ValidateCredentials(); err == nil {
		t.Error("openai without key should fail")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	if err := cfg.ValidateCredentials(); err != nil {
		t.Errorf("openai with key: %v", err)
	}

	// Ollama needs no key, but its openai embedding fallback would.
	cfg.Provider = ProviderOllama
	cfg.EmbeddingProvider = ProviderOllama
	t.Setenv("OPENAI_API_KEY", "")
	if err := cfg.ValidateCredentials(); err != nil {
		t.Errorf("ollama should need no credentials: %v", err)
	}

	cfg.Provider = ProviderAnthropic
	cfg.EmbeddingProvider = ProviderOpenAI
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	if err := cfg.ValidateCredentials(); err == nil {
		t.Error("missing embedding provider key should fail")
	}
}

func TestAPIKeyEnvVar(t *testing.T) {
	if got := APIKeyEnvVar(ProviderOpenAI); got != "OPENAI_API_KEY" {
		t.Errorf("openai: %q", got)
	}
	if got := APIKeyEnvVar(ProviderAnthropic); got != "ANTHROPIC_API_KEY" {
		t.Errorf("anthropic: %q", got)
	}
	if got := APIKeyEnvVar(ProviderOllama); got != "" {
		t.Errorf("ollama: %q", got)
	}
}
