package engine

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/ragcore/internal/contextwindow"
	"github.com/ziadkadry99/ragcore/internal/provider"
	"github.com/ziadkadry99/ragcore/internal/retriever"
)

// assembleContext converts the conversation window into provider messages
// and injects the retrieved knowledge into the system prompt. With no
// retrieval hits the model is told to answer from general knowledge so it
// does not hallucinate citations.
func assembleContext(window *contextwindow.Context, result *retriever.Result, systemPrompt string) []provider.Message {
	prompt := systemPrompt
	if window.SystemPrompt != "" {
		prompt = window.SystemPrompt
	}

	augmented := augmentSystemPrompt(prompt, result)

	msgs := make([]provider.Message, 0, len(window.Messages)+1)
	if augmented != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: augmented})
	}
	for _, m := range window.Messages {
		if m.Role == contextwindow.RoleSystem {
			continue
		}
		msgs = append(msgs, provider.Message{
			Role:    provider.Role(m.Role),
			Content: m.Content,
		})
	}
	return msgs
}

func augmentSystemPrompt(base string, result *retriever.Result) string {
	var b strings.Builder
	if base != "" {
		b.WriteString(base)
		b.WriteString("\n\n")
	}

	if result == nil || len(result.Chunks) == 0 {
		b.WriteString("No reference material matched this question. " +
			"Answer from general knowledge and say so; do not invent citations.")
		return b.String()
	}

	b.WriteString("Use the following reference material to answer. " +
		"Cite the source document in brackets, like [" + result.Chunks[0].DocumentID + "], " +
		"when you draw from it.\n")
	for i, chunk := range result.Chunks {
		fmt.Fprintf(&b, "\n--- Reference %d (source: %s, relevance: %.2f) ---\n%s\n",
			i+1, chunk.DocumentID, chunk.Score, strings.TrimSpace(chunk.Text))
	}
	return b.String()
}
