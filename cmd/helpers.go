package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ziadkadry99/ragcore/internal/chunker"
	"github.com/ziadkadry99/ragcore/internal/config"
	"github.com/ziadkadry99/ragcore/internal/contextwindow"
	"github.com/ziadkadry99/ragcore/internal/embeddings"
	"github.com/ziadkadry99/ragcore/internal/engine"
	"github.com/ziadkadry99/ragcore/internal/log"
	"github.com/ziadkadry99/ragcore/internal/provider"
	"github.com/ziadkadry99/ragcore/internal/retriever"
	"github.com/ziadkadry99/ragcore/internal/store"
	"github.com/ziadkadry99/ragcore/internal/vectordb"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `ragcore init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildLogger creates the process logger from the config, with --verbose
// forcing debug level.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: cfg.Log.JSON})
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	p := cfg.EmbeddingProvider
	if p == "" {
		p = cfg.Provider
	}

	switch p {
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(cfg.EmbeddingModel, 768, cfg.BaseURL), nil
	default:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for %s embeddings", p)
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(cfg.EmbeddingModel)), nil
	}
}

// buildEngine wires the full pipeline: storage, embeddings, vector store,
// retriever, window manager, and provider registry.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, *store.DB, error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, nil, err
	}

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var vectors *vectordb.Store
	if cfg.Storage.VectorPath != "" {
		vectors, err = vectordb.NewPersistent(cfg.Storage.VectorPath, embedder)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("opening vector store: %w", err)
		}
	} else {
		vectors = vectordb.New(embedder)
	}

	chunkOpts := chunker.Options{
		ChunkSizeTokens:            cfg.Chunking.ChunkSizeTokens,
		OverlapTokens:              cfg.Chunking.OverlapTokens,
		MinChunkTokens:             cfg.Chunking.MinChunkTokens,
		MaxChunkTokens:             cfg.Chunking.MaxChunkTokens,
		RespectSentenceBoundaries:  cfg.Chunking.RespectSentences,
		RespectParagraphBoundaries: cfg.Chunking.RespectParagraphs,
	}

	manager := contextwindow.NewManager(db, logger)
	ret := retriever.New(embedder, vectors, db, logger)
	registry := provider.NewRegistry(logger)
	indexer := engine.NewIndexer(chunkOpts, vectors, db, logger)

	creds := provider.Credentials{
		APIKey:  os.Getenv(config.APIKeyEnvVar(cfg.Provider)),
		BaseURL: cfg.BaseURL,
	}

	return engine.New(cfg, manager, ret, registry, indexer, creds, logger), db, nil
}
