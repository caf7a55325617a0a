package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func anthropicTestServer(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAnthropic(Credentials{APIKey: "test-key", BaseURL: srv.URL}, Config{SystemPrompt: "be brief"})
}

func TestAnthropicGenerate(t *testing.T) {
	var gotReq anthropicRequest
	var gotKey, gotVersion string
	p := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		fmt.Fprint(w, `{
			"content": [{"type":"text","text":"Hello "},{"type":"text","text":"there"}],
			"model": "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 9, "output_tokens": 4}
		}`)
	})

	resp, err := p.Generate(context.Background(), Request{
		Model:       "claude-sonnet-4-5-20250929",
		UserMessage: "hi",
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("x-api-key: got %q", gotKey)
	}
	if gotVersion == "" {
		t.Error("anthropic-version header missing")
	}
	if gotReq.System != "be brief" {
		t.Errorf("system: got %q, want the configured prompt", gotReq.System)
	}
	for _, m := range gotReq.Messages {
		if m.Role == "system" {
			t.Error("system role leaked into the messages array")
		}
	}

	if resp.Content != "Hello there" {
		t.Errorf("content: got %q", resp.Content)
	}
	if resp.FinishReason != "end_turn" {
		t.Errorf("finish reason: got %q", resp.FinishReason)
	}
	if resp.Usage.InputTokens != 9 || resp.Usage.OutputTokens != 4 || resp.Usage.TotalTokens != 13 {
		t.Errorf("usage: %+v", resp.Usage)
	}
}

func TestAnthropicGenerateDefaultMaxTokens(t *testing.T) {
	var gotReq anthropicRequest
	p := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		fmt.Fprint(w, `{"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
	})

	if _, err := p.Generate(context.Background(), Request{Model: "m", UserMessage: "hi"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if gotReq.MaxTokens != defaultMaxTokens {
		t.Errorf("max_tokens: got %d, want default %d", gotReq.MaxTokens, defaultMaxTokens)
	}
}

func TestAnthropicGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		status        int
		wantCode      Code
		wantRetryable bool
	}{
		{401, CodeInvalidAPIKey, false},
		{429, CodeRateLimited, true},
		{503, CodeServerError, true},
		{404, CodeNotFound, false},
	}

	for _, tt := range tests {
		p := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "failure", tt.status)
		})
		_, err := p.Generate(context.Background(), Request{Model: "m", UserMessage: "hi"})
		var pe *Error
		if !errors.As(err, &pe) {
			t.Fatalf("status %d: got %v, want a provider error", tt.status, err)
		}
		if pe.Code != tt.wantCode || pe.Retryable != tt.wantRetryable {
			t.Errorf("status %d: got %s retryable=%t, want %s retryable=%t",
				tt.status, pe.Code, pe.Retryable, tt.wantCode, tt.wantRetryable)
		}
	}
}

func TestAnthropicGenerateStream(t *testing.T) {
	p := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, `data: {"type":"message_start","message":{"usage":{"input_tokens":7}}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Good "}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"day"}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"message_stop"}`+"\n\n")
	})

	ch, err := p.GenerateStream(context.Background(), Request{Model: "m", UserMessage: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	if chunks[0].Delta != "Good " || chunks[1].Content != "Good day" {
		t.Errorf("content chunks wrong: %+v", chunks[:2])
	}

	final := chunks[2]
	if final.FinishReason != "end_turn" {
		t.Errorf("finish reason: got %q", final.FinishReason)
	}
	if final.Usage == nil {
		t.Fatal("final chunk has no usage")
	}
	if final.Usage.InputTokens != 7 || final.Usage.OutputTokens != 2 || final.Usage.TotalTokens != 9 {
		t.Errorf("usage: %+v", final.Usage)
	}
}

func TestAnthropicStreamConnectError(t *testing.T) {
	p := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", 503)
	})

	_, err := p.GenerateStream(context.Background(), Request{Model: "m", UserMessage: "hi"})
	var pe *Error
	if !errors.As(err, &pe) || pe.Code != CodeServerError || !pe.Retryable {
		t.Fatalf("got %v, want retryable SERVER_ERROR", err)
	}
}

func TestAnthropicModerateNotSupported(t *testing.T) {
	p := NewAnthropic(Credentials{APIKey: "k"}, Config{})
	_, err := p.Moderate(context.Background(), "text")
	if !errors.Is(err, ErrModerationNotSupported) {
		t.Errorf("got %v, want ErrModerationNotSupported", err)
	}
}

func TestAnthropicStreamDroppedConnection(t *testing.T) {
	p := anthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Deltas arrive but the connection closes before message_stop.
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Good "}}`+"\n\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"day"}}`+"\n\n")
	})

	ch, err := p.GenerateStream(context.Background(), Request{Model: "m", UserMessage: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %+v", len(chunks), chunks)
	}

	last := chunks[2]
	if last.Err == nil {
		t.Fatal("expected a terminal error chunk after the connection dropped")
	}
	if last.Usage != nil || last.FinishReason != "" {
		t.Errorf("terminal error chunk carries completion fields: %+v", last)
	}
	if !IsRetryable(last.Err) {
		t.Errorf("dropped connection should be retryable: %v", last.Err)
	}
}
