package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/ragcore/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ragcore",
	Short: "Retrieval-augmented chat over your own documents",
	Long: `ragcore indexes your documents into a semantic vector store and answers
questions about them through any supported LLM provider, with source
citations and a per-conversation context window.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
