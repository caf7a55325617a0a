package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama implements Provider against a local Ollama instance via direct
// HTTP. No credentials are required; BaseURL selects the host.
type Ollama struct {
	baseURL string
	cfg     Config
	client  *http.Client
}

// NewOllama creates an Ollama-backed provider.
func NewOllama(creds Credentials, cfg Config) *Ollama {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &Ollama{
		baseURL: baseURL,
		cfg:     cfg,
		client:  &http.Client{},
	}
}

func (p *Ollama) Name() string {
	return string(BackendOllama)
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Model           string        `json:"model"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func (p *Ollama) Generate(ctx context.Context, req Request) (*Response, error) {
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

	var apiResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &Error{Code: CodeUnknown, Message: fmt.Sprintf("decoding ollama response: %v", err)}
	}

	usage := Usage{
		InputTokens:  apiResp.PromptEvalCount,
		OutputTokens: apiResp.EvalCount,
	}
	return &Response{
		Content:      apiResp.Message.Content,
		Model:        apiResp.Model,
		FinishReason: apiResp.DoneReason,
		Usage:        ensureUsage(BackendOllama, usage, msgs, apiResp.Message.Content),
	}, nil
}

func (p *Ollama) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
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
		defer close(out)
		defer httpResp.Body.Close()

		streamID := uuid.NewString()
		var content string
		var reported Usage

		// Ollama streams newline-delimited JSON rather than SSE.
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var event ollamaChatResponse
			if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
				continue
			}

			if event.Message.Content != "" {
				content += event.Message.Content
				select {
				case out <- StreamChunk{ID: streamID, Content: content, Delta: event.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if event.Done {
				reported.InputTokens = event.PromptEvalCount
				reported.OutputTokens = event.EvalCount
				usage := ensureUsage(BackendOllama, reported, msgs, content)
				select {
				case out <- StreamChunk{ID: streamID, Content: content, FinishReason: event.DoneReason, Usage: &usage}:
				case <-ctx.Done():
				}
				return
			}
		}

		// The loop only falls through when the connection died before
		// the done frame arrived.
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

// Moderate is not available: Ollama exposes no moderation endpoint.
func (p *Ollama) Moderate(ctx context.Context, text string) (*ModerationResult, error) {
	return nil, ErrModerationNotSupported
}

func (p *Ollama) apiRequest(req Request, msgs []Message, stream bool) ollamaChatRequest {
	apiMsgs := make([]ollamaMessage, len(msgs))
	for i, m := range msgs {
		apiMsgs[i] = ollamaMessage{Role: string(m.Role), Content: m.Content}
	}

	return ollamaChatRequest{
		Model:    req.Model,
		Messages: apiMsgs,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
			Stop:        req.StopSequences,
		},
	}
}

func (p *Ollama) post(ctx context.Context, apiReq ollamaChatRequest) (*http.Response, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshalling ollama request: %w", err)
	}

	url := p.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return p.client.Do(httpReq)
}
