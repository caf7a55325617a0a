package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .ragcore.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to ragcore! Let's configure your project.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"openai", "anthropic", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)
	preset := modelPresets[provider]

	cfg.Provider = provider
	cfg.Model = preset.Model
	cfg.EmbeddingProvider = embeddingProviderFor(provider)
	cfg.EmbeddingModel = preset.EmbeddingModel

	// 2. Model override.
	modelPrompt := promptui.Prompt{
		Label:   "Chat model",
		Default: preset.Model,
	}
	if model, err := modelPrompt.Run(); err == nil && model != "" {
		cfg.Model = model
	}

	// 3. Context window budget.
	contextPrompt := promptui.Prompt{
		Label:   "Max context tokens",
		Default: strconv.Itoa(cfg.Context.MaxContextTokens),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("must be a number")
			}
			if n <= 500 {
				return fmt.Errorf("must exceed the 500-token response reserve")
			}
			return nil
		},
	}
	contextStr, err := contextPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("context budget: %w", err)
	}
	cfg.Context.MaxContextTokens, _ = strconv.Atoi(contextStr)

	// 4. Chunk size.
	chunkPrompt := promptui.Prompt{
		Label:   "Chunk size in tokens",
		Default: strconv.Itoa(cfg.Chunking.ChunkSizeTokens),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("must be a number")
			}
			if n <= 0 {
				return fmt.Errorf("must be positive")
			}
			return nil
		},
	}
	chunkStr, err := chunkPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("chunk size: %w", err)
	}
	cfg.Chunking.ChunkSizeTokens, _ = strconv.Atoi(chunkStr)
	if cfg.Chunking.OverlapTokens >= cfg.Chunking.ChunkSizeTokens {
		cfg.Chunking.OverlapTokens = cfg.Chunking.ChunkSizeTokens / 8
	}
	if cfg.Chunking.MaxChunkTokens < cfg.Chunking.ChunkSizeTokens {
		cfg.Chunking.MaxChunkTokens = cfg.Chunking.ChunkSizeTokens * 2
	}

	// 5. Server address.
	addrPrompt := promptui.Prompt{
		Label:   "Server listen address",
		Default: cfg.Server.Addr,
	}
	if addr, err := addrPrompt.Run(); err == nil && addr != "" {
		cfg.Server.Addr = addr
	}

	// Check for API keys.
	for _, p := range []ProviderType{cfg.Provider, cfg.EmbeddingProvider} {
		envVar := APIKeyEnvVar(p)
		if envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment before running ragcore serve.\n", envVar)
		}
	}

	if err := cfg.Save(DefaultPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", DefaultPath)
	return cfg, nil
}
