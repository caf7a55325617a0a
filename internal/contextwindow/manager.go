// Package contextwindow maintains the per-conversation rolling window of
// prior turns under a token budget, with a bounded FIFO cache over a
// durable message store.
package contextwindow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultCacheCapacity bounds the number of conversations held in
	// memory at once.
	DefaultCacheCapacity = 1000

	// DefaultCacheTTL is measured from the last load or write of an
	// entry; stale entries are reloaded from the store.
	DefaultCacheTTL = 30 * time.Minute

	// reloadLimit caps how many trailing messages are fetched from the
	// durable store on a cache miss.
	reloadLimit = 50

	// responseReserveTokens is held back from the window budget for the
	// eventual model response.
	responseReserveTokens = 500
)

// MessageStore is the durable persistence collaborator. Implementations
// must scope every operation by tenant.
type MessageStore interface {
	// ListRecentMessages returns up to limit trailing messages for the
	// conversation, oldest first.
	ListRecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]StoredMessage, error)

	// SystemPromptFor returns the stored system prompt override for the
	// conversation, or "" when none exists.
	SystemPromptFor(ctx context.Context, tenantID, conversationID string) (string, error)

	// AppendMessage durably records one message.
	AppendMessage(ctx context.Context, tenantID, conversationID string, msg Message) error
}

// Manager owns the conversation cache and serializes mutations per
// conversation. Safe for concurrent use.
type Manager struct {
	store  MessageStore
	cache  *fifoCache
	logger *slog.Logger
	locks  sync.Map // cacheKey -> *sync.Mutex
	now    func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithCache overrides the cache capacity and TTL.
func WithCache(capacity int, ttl time.Duration) Option {
	return func(m *Manager) {
		m.cache = newFIFOCache(capacity, ttl)
	}
}

// WithClock overrides time.Now. Tests only.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager over the given durable store.
func NewManager(store MessageStore, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		cache:  newFIFOCache(DefaultCacheCapacity, DefaultCacheTTL),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache.evicted = func(key cacheKey) {
		logger.Debug("context cache eviction",
			"tenant_id", key.tenantID,
			"conversation_id", key.conversationID,
		)
	}
	return m
}

// GetContext returns the conversation window, loading it from the durable
// store when the cache entry is absent or stale. The returned context is a
// copy; mutations go through AddMessage.
func (m *Manager) GetContext(ctx context.Context, conversationID, tenantID string, cfg Config) (*Context, error) {
	key := cacheKey{tenantID: tenantID, conversationID: conversationID}
	unlock := m.lock(key)
	defer unlock()

	c, err := m.getLocked(ctx, key, cfg)
	if err != nil {
		return nil, err
	}
	return c.clone(), nil
}

// AddMessage appends a message to the conversation, trims the window to its
// budget, persists the new message, and refreshes the cache. Returns the
// updated window as a copy.
func (m *Manager) AddMessage(ctx context.Context, conversationID, tenantID string, msg Message, cfg Config) (*Context, error) {
	key := cacheKey{tenantID: tenantID, conversationID: conversationID}
	unlock := m.lock(key)
	defer unlock()

	c, err := m.getLocked(ctx, key, cfg)
	if err != nil {
		return nil, err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now()
	}
	if msg.TokenCount == 0 {
		msg.TokenCount = estimateTokens(msg.Content)
	}

	// Mutate a copy: a failed persist must not leave a phantom message
	// in the shared cache entry.
	next := c.clone()
	next.Messages = append(next.Messages, msg)
	next.TotalTokens += msg.TokenCount
	next.LastActivity = m.now()

	if next.MaxContextTokens > 0 && next.TotalTokens > next.MaxContextTokens {
		m.trimInPlace(next)
	}

	if err := m.store.AppendMessage(ctx, tenantID, conversationID, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	m.cache.put(key, next, m.now())
	return next.clone(), nil
}

// Trim applies the eviction policy to a context copy and returns the
// trimmed result. Trimming an already-trimmed context is a no-op.
func (m *Manager) Trim(c *Context, cfg Config) *Context {
	out := c.clone()
	if cfg.MaxContextTokens > 0 {
		out.MaxContextTokens = cfg.MaxContextTokens
	}
	if out.MaxContextTokens > 0 && out.TotalTokens > out.MaxContextTokens {
		m.trimInPlace(out)
	}
	return out
}

// getLocked returns the live cached context, reloading on miss. Caller
// holds the per-conversation lock.
func (m *Manager) getLocked(ctx context.Context, key cacheKey, cfg Config) (*Context, error) {
	now := m.now()
	if c, ok := m.cache.get(key, now); ok {
		return c, nil
	}

	c, err := m.load(ctx, key, cfg)
	if err != nil {
		return nil, err
	}
	m.cache.put(key, c, now)
	return c, nil
}

// load rebuilds the window from the durable store: trailing messages plus a
// synthetic system message when the config carries a system prompt.
func (m *Manager) load(ctx context.Context, key cacheKey, cfg Config) (*Context, error) {
	stored, err := m.store.ListRecentMessages(ctx, key.tenantID, key.conversationID, reloadLimit)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", key.conversationID, err)
	}

	systemPrompt := cfg.SystemPrompt
	override, err := m.store.SystemPromptFor(ctx, key.tenantID, key.conversationID)
	switch {
	case err != nil:
		// Degraded but usable: fall back to the configured prompt.
		m.logger.Warn("loading system prompt override failed",
			"tenant_id", key.tenantID,
			"conversation_id", key.conversationID,
			"error", err,
		)
	case override != "":
		systemPrompt = override
	}

	c := &Context{
		ConversationID:   key.conversationID,
		TenantID:         key.tenantID,
		MaxContextTokens: cfg.MaxContextTokens,
		SystemPrompt:     systemPrompt,
		LastActivity:     m.now(),
	}

	if systemPrompt != "" {
		c.Messages = append(c.Messages, Message{
			ID:         uuid.NewString(),
			Role:       RoleSystem,
			Content:    systemPrompt,
			TokenCount: estimateTokens(systemPrompt),
			// Dated before every stored message so re-sorting after a
			// trim keeps it in front.
			Timestamp: earliestTimestamp(stored, m.now()).Add(-time.Second),
		})
	}

	for _, s := range stored {
		c.Messages = append(c.Messages, Message{
			ID:         s.ID,
			Role:       s.Role,
			Content:    s.Content,
			TokenCount: estimateTokens(s.Content),
			Timestamp:  s.CreatedAt,
		})
	}
	c.recount()

	if c.MaxContextTokens > 0 && c.TotalTokens > c.MaxContextTokens {
		m.trimInPlace(c)
	}
	return c, nil
}

// trimInPlace enforces the token budget: a reserve is held back for the
// model response, system messages are kept unless they alone blow the
// budget, and non-system messages are selected newest-first all-or-nothing,
// then re-sorted to chronological order.
func (m *Manager) trimInPlace(c *Context) {
	budget := c.MaxContextTokens - responseReserveTokens
	if budget < 0 {
		budget = 0
	}

	var system, rest []Message
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	systemTokens := 0
	for _, msg := range system {
		systemTokens += msg.TokenCount
	}

	if systemTokens > budget && len(system) > 0 {
		// Keep only the most recent system message. The data loss is
		// intentional; it must be visible in the logs.
		latest := system[0]
		for _, msg := range system[1:] {
			if msg.Timestamp.After(latest.Timestamp) {
				latest = msg
			}
		}
		dropped := c.TotalTokens - latest.TokenCount
		m.logger.Warn("system prompt exceeds context budget, collapsing window",
			"conversation_id", c.ConversationID,
			"tenant_id", c.TenantID,
			"system_tokens", systemTokens,
			"budget", budget,
			"dropped_tokens", dropped,
		)
		c.Messages = []Message{latest}
		c.recount()
		return
	}

	remaining := budget - systemTokens
	kept := system
	// Newest first, all-or-nothing per message: stop at the first
	// overflow rather than skipping it to fit a smaller, older one.
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i].TokenCount > remaining {
			break
		}
		kept = append(kept, rest[i])
		remaining -= rest[i].TokenCount
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})
	c.Messages = kept
	c.recount()
}

// lock acquires the per-conversation critical section.
func (m *Manager) lock(key cacheKey) func() {
	v, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func earliestTimestamp(stored []StoredMessage, fallback time.Time) time.Time {
	earliest := fallback
	for _, s := range stored {
		if s.CreatedAt.Before(earliest) {
			earliest = s.CreatedAt
		}
	}
	return earliest
}
