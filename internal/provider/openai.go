package provider

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI implements Provider using the OpenAI Chat Completions API.
type OpenAI struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAI creates an OpenAI-backed provider.
func NewOpenAI(creds Credentials, cfg Config) *OpenAI {
	clientCfg := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		clientCfg.BaseURL = creds.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

func (p *OpenAI) Name() string {
	return string(BackendOpenAI)
}

func (p *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	msgs := assembleMessages(req, p.cfg.SystemPrompt)

	resp, err := p.client.CreateChatCompletion(ctx, p.apiRequest(req, msgs))
	if err != nil {
		return nil, normalizeOpenAIError(err)
	}

	var content, finishReason string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finishReason = string(resp.Choices[0].FinishReason)
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	return &Response{
		Content:      content,
		Model:        resp.Model,
		FinishReason: finishReason,
		Usage:        ensureUsage(BackendOpenAI, usage, msgs, content),
	}, nil
}

func (p *OpenAI) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	msgs := assembleMessages(req, p.cfg.SystemPrompt)

	apiReq := p.apiRequest(req, msgs)
	apiReq.Stream = true
	apiReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, normalizeOpenAIError(err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		streamID := uuid.NewString()
		var content string
		var finishReason string
		var reported Usage

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				select {
				case out <- StreamChunk{ID: streamID, Err: StreamInterrupted(err)}:
				case <-ctx.Done():
				}
				return
			}
			if resp.Usage != nil {
				reported.InputTokens = resp.Usage.PromptTokens
				reported.OutputTokens = resp.Usage.CompletionTokens
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if resp.Choices[0].FinishReason != "" {
				finishReason = string(resp.Choices[0].FinishReason)
			}
			if delta == "" {
				continue
			}
			content += delta
			select {
			case out <- StreamChunk{ID: streamID, Content: content, Delta: delta}:
			case <-ctx.Done():
				return
			}
		}

		usage := ensureUsage(BackendOpenAI, reported, msgs, content)
		select {
		case out <- StreamChunk{ID: streamID, Content: content, FinishReason: finishReason, Usage: &usage}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (p *OpenAI) Moderate(ctx context.Context, text string) (*ModerationResult, error) {
	resp, err := p.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: openai.ModerationTextStable,
	})
	if err != nil {
		return nil, normalizeOpenAIError(err)
	}
	if len(resp.Results) == 0 {
		return &ModerationResult{Categories: map[string]bool{}}, nil
	}

	r := resp.Results[0]
	return &ModerationResult{
		Flagged: r.Flagged,
		Categories: map[string]bool{
			"hate":       r.Categories.Hate,
			"harassment": r.Categories.Harassment,
			"self-harm":  r.Categories.SelfHarm,
			"sexual":     r.Categories.Sexual,
			"violence":   r.Categories.Violence,
		},
	}, nil
}

func (p *OpenAI) apiRequest(req Request, msgs []Message) openai.ChatCompletionRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	apiMsgs := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		apiMsgs[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    apiMsgs,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
		Stop:        req.StopSequences,
	}
}

func normalizeOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return FromStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return FromStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}
	return FromTransport(err)
}
