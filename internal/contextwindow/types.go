package contextwindow

import "time"

// Role identifies the sender of a context message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn inside a conversation window. Messages are
// ordered by Timestamp and unique by ID.
type Message struct {
	ID         string
	Role       Role
	Content    string
	TokenCount int
	Timestamp  time.Time
	Metadata   map[string]string
}

// Context is the rolling window of one conversation. TotalTokens always
// equals the sum of the message token counts after every mutation.
type Context struct {
	ConversationID   string
	TenantID         string
	Messages         []Message
	TotalTokens      int
	MaxContextTokens int
	SystemPrompt     string
	LastActivity     time.Time
}

// clone returns a deep copy so cached state never escapes to callers.
func (c *Context) clone() *Context {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}

// recount re-derives TotalTokens from the message list.
func (c *Context) recount() {
	total := 0
	for _, m := range c.Messages {
		total += m.TokenCount
	}
	c.TotalTokens = total
}

// Config carries the per-conversation window settings supplied by the
// caller on each operation.
type Config struct {
	MaxContextTokens int
	SystemPrompt     string
}

// StoredMessage is the shape the durable message store hands back when a
// conversation is reloaded.
type StoredMessage struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// estimateTokens is the deterministic ceil(len/4) approximation used to tag
// reloaded messages. Mirrors the chunker's default so budgets line up.
func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
