package provider

import "time"

// Role identifies a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn handed to a backend.
type Message struct {
	Role    Role
	Content string
}

// Request is the transport-neutral generation request. Context holds prior
// turns in chronological order and may carry a system-role message that
// overrides the configured system prompt.
type Request struct {
	Model         string
	Context       []Message
	UserMessage   string
	MaxTokens     int
	Temperature   float64
	TopP          float64
	StopSequences []string
}

// Usage is token accounting for one call. Estimated marks counts derived
// locally because the backend did not report them; Usage is always
// populated either way.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Estimated    bool
}

// Response is a completed (non-streaming) generation.
type Response struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// StreamChunk is one increment of a streaming generation. Content is the
// full text so far, Delta only the new fragment. FinishReason and Usage are
// set on the final chunk only. A stream that dies mid-flight delivers a
// terminal chunk with Err set instead of a final chunk; either way the
// channel is closed afterwards.
type StreamChunk struct {
	ID           string
	Content      string
	Delta        string
	FinishReason string
	Usage        *Usage
	Err          error
}

// ModerationResult reports whether text violates the backend's content
// policy.
type ModerationResult struct {
	Flagged    bool
	Categories map[string]bool
}

// Credentials identifies a tenant's account with a backend.
type Credentials struct {
	APIKey  string
	BaseURL string // optional; backends fall back to their public endpoint
}

// Config is the call policy shared by all backends.
type Config struct {
	SystemPrompt      string
	Timeout           time.Duration // defaults to DefaultTimeout
	MaxAttempts       int           // retry budget, defaults to DefaultMaxAttempts
	RequestsPerMinute int           // 0 disables client-side rate limiting
}

const (
	// DefaultTimeout bounds one backend round trip.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts is the bounded retry budget for retryable codes.
	DefaultMaxAttempts = 3

	defaultMaxTokens = 4096
)

// assembleMessages merges the configured system prompt with the request
// context: a system-role message in the context overrides the config, the
// ordered non-system turns follow, and the current user message comes last.
func assembleMessages(req Request, systemPrompt string) []Message {
	for _, m := range req.Context {
		if m.Role == RoleSystem {
			systemPrompt = m.Content
			break
		}
	}

	msgs := make([]Message, 0, len(req.Context)+2)
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	}
	for _, m := range req.Context {
		if m.Role == RoleSystem {
			continue
		}
		msgs = append(msgs, m)
	}
	return append(msgs, Message{Role: RoleUser, Content: req.UserMessage})
}
