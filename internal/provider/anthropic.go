package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// Anthropic implements Provider using the Anthropic Messages API via direct
// HTTP, including SSE streaming.
type Anthropic struct {
	apiKey  string
	baseURL string
	cfg     Config
	client  *http.Client
}

// NewAnthropic creates an Anthropic-backed provider.
func NewAnthropic(creds Credentials, cfg Config) *Anthropic {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = anthropicAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Anthropic{
		apiKey:  creds.APIKey,
		baseURL: baseURL,
		cfg:     cfg,
		// No client-level timeout: it would kill long-lived streams.
		// Blocking calls bound themselves with a per-request context.
		client: &http.Client{},
	}
}

func (p *Anthropic) Name() string {
	return string(BackendAnthropic)
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature,omitempty"`
	TopP          float64            `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Stream        bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	callCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		timeout := p.cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msgs := assembleMessages(req, p.cfg.SystemPrompt)
	httpResp, err := p.post(callCtx, p.apiRequest(req, msgs, false))
	if err != nil {
		return nil, FromTransport(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, FromTransport(err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, FromStatus(httpResp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &Error{Code: CodeUnknown, Message: fmt.Sprintf("decoding anthropic response: %v", err)}
	}
	if apiResp.Error != nil {
		return nil, &Error{Code: CodeUnknown, Message: apiResp.Error.Message}
	}

	var content strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	usage := Usage{
		InputTokens:  apiResp.Usage.InputTokens,
		OutputTokens: apiResp.Usage.OutputTokens,
	}
	return &Response{
		Content:      content.String(),
		Model:        apiResp.Model,
		FinishReason: apiResp.StopReason,
		Usage:        ensureUsage(BackendAnthropic, usage, msgs, content.String()),
	}, nil
}

// anthropicStreamEvent is the union of the SSE event payloads we care
// about: content_block_delta carries text, message_delta the stop reason
// and output usage.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage   anthropicUsage `json:"usage"`
	Message struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
}

func (p *Anthropic) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	msgs := assembleMessages(req, p.cfg.SystemPrompt)

	httpResp, err := p.post(ctx, p.apiRequest(req, msgs, true))
	if err != nil {
		return nil, FromTransport(err)
	}
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		return nil, FromStatus(httpResp.StatusCode, string(body))
	}

	out := make(chan StreamChunk)
	go func() {
		// Closing the body is what releases the connection on early
		// cancellation; the http client also closes it when ctx ends.
		defer close(out)
		defer httpResp.Body.Close()

		streamID := uuid.NewString()
		var content string
		var finishReason string
		var reported Usage

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				continue
			}

			switch event.Type {
			case "message_start":
				reported.InputTokens = event.Message.Usage.InputTokens
			case "content_block_delta":
				if event.Delta.Text == "" {
					continue
				}
				content += event.Delta.Text
				select {
				case out <- StreamChunk{ID: streamID, Content: content, Delta: event.Delta.Text}:
				case <-ctx.Done():
					return
				}
			case "message_delta":
				finishReason = event.Delta.StopReason
				reported.OutputTokens = event.Usage.OutputTokens
			case "message_stop":
				usage := ensureUsage(BackendAnthropic, reported, msgs, content)
				select {
				case out <- StreamChunk{ID: streamID, Content: content, FinishReason: finishReason, Usage: &usage}:
				case <-ctx.Done():
				}
				return
			}
		}

		// The loop only falls through when the connection died before
		// message_stop arrived.
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- StreamChunk{ID: streamID, Err: StreamInterrupted(scanner.Err())}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// Moderate is not available on the Anthropic API surface this adapter
// targets.
func (p *Anthropic) Moderate(ctx context.Context, text string) (*ModerationResult, error) {
	return nil, ErrModerationNotSupported
}

func (p *Anthropic) apiRequest(req Request, msgs []Message, stream bool) anthropicRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	var system string
	var apiMsgs []anthropicMessage
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		apiMsgs = append(apiMsgs, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	return anthropicRequest{
		Model:         req.Model,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopSequences,
		System:        system,
		Messages:      apiMsgs,
		Stream:        stream,
	}
}

func (p *Anthropic) post(ctx context.Context, apiReq anthropicRequest) (*http.Response, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshalling anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	return p.client.Do(httpReq)
}
