package config

// ProviderType identifies an LLM provider backend.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
)

// Config is the top-level ragcore configuration, corresponding to
// .ragcore.yml.
type Config struct {
	Provider          ProviderType    `yaml:"provider" koanf:"provider"`
	Model             string          `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType    `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string          `yaml:"embedding_model" koanf:"embedding_model"`
	BaseURL           string          `yaml:"base_url" koanf:"base_url"`
	SystemPrompt      string          `yaml:"system_prompt" koanf:"system_prompt"`
	RequestsPerMinute int             `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	Chunking          ChunkingConfig  `yaml:"chunking" koanf:"chunking"`
	Context           ContextConfig   `yaml:"context" koanf:"context"`
	Retrieval         RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	Server            ServerConfig    `yaml:"server" koanf:"server"`
	Storage           StorageConfig   `yaml:"storage" koanf:"storage"`
	Log               LogConfig       `yaml:"log" koanf:"log"`
}

// ChunkingConfig controls how documents are split before embedding.
type ChunkingConfig struct {
	ChunkSizeTokens   int  `yaml:"chunk_size_tokens" koanf:"chunk_size_tokens"`
	OverlapTokens     int  `yaml:"overlap_tokens" koanf:"overlap_tokens"`
	MinChunkTokens    int  `yaml:"min_chunk_tokens" koanf:"min_chunk_tokens"`
	MaxChunkTokens    int  `yaml:"max_chunk_tokens" koanf:"max_chunk_tokens"`
	RespectSentences  bool `yaml:"respect_sentences" koanf:"respect_sentences"`
	RespectParagraphs bool `yaml:"respect_paragraphs" koanf:"respect_paragraphs"`
}

// ContextConfig controls the conversation window budget.
type ContextConfig struct {
	MaxContextTokens int `yaml:"max_context_tokens" koanf:"max_context_tokens"`
}

// RetrievalConfig controls how knowledge chunks are fetched per query.
type RetrievalConfig struct {
	MaxChunks int    `yaml:"max_chunks" koanf:"max_chunks"`
	Strategy  string `yaml:"strategy" koanf:"strategy"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr" koanf:"addr"`
}

// StorageConfig holds the on-disk persistence paths.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" koanf:"database_path"`
	VectorPath   string `yaml:"vector_path" koanf:"vector_path"`
}

// LogConfig holds the structured logging settings.
type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
	JSON  bool   `yaml:"json" koanf:"json"`
}
