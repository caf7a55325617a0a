package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/ragcore/internal/engine"
)

var chatTenant string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with your knowledge base from the terminal",
	Long:  `Starts an interactive chat session. Answers stream to the terminal and cite the documents they draw from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := buildLogger(cfg)

		eng, db, err := buildEngine(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		conversationID := uuid.NewString()
		fmt.Println("ragcore chat. Type your question, or 'exit' to quit.")

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("\n> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}

			if err := streamAnswer(cmd, eng, chatTenant, conversationID, line); err != nil {
				fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
			}
		}
	},
}

func streamAnswer(cmd *cobra.Command, eng *engine.Engine, tenantID, conversationID, message string) error {
	events, err := eng.RespondStream(cmd.Context(), engine.ChatRequest{
		TenantID:       tenantID,
		ConversationID: conversationID,
		Message:        message,
	})
	if err != nil {
		return err
	}

	var sources []string
	for event := range events {
		switch event.Type {
		case engine.EventSources:
			for _, src := range event.Sources {
				sources = append(sources, fmt.Sprintf("%s (%.2f)", src.DocumentID, src.RelevanceScore))
			}
		case engine.EventContent:
			fmt.Print(event.Delta)
		case engine.EventComplete:
			fmt.Println()
			if len(sources) > 0 {
				fmt.Printf("\nSources: %s\n", strings.Join(sources, ", "))
			}
		case engine.EventError:
			return event.Err
		}
	}
	return nil
}

func init() {
	chatCmd.Flags().StringVar(&chatTenant, "tenant", "default", "tenant to chat against")
	rootCmd.AddCommand(chatCmd)
}
