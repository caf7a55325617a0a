package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func ollamaTestServer(t *testing.T, handler http.HandlerFunc) *Ollama {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllama(Credentials{BaseURL: srv.URL}, Config{})
}

func TestOllamaGenerate(t *testing.T) {
	var gotReq ollamaChatRequest
	p := ollamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path: got %s, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:         ollamaMessage{Role: "assistant", Content: "the answer"},
			Model:           "llama3",
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 12,
			EvalCount:       5,
		})
	})

	resp, err := p.Generate(context.Background(), Request{
		Model:       "llama3",
		UserMessage: "question",
		Context:     []Message{{Role: RoleUser, Content: "earlier"}},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Content != "the answer" {
		t.Errorf("content: got %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 5 || resp.Usage.TotalTokens != 17 {
		t.Errorf("usage: got %+v", resp.Usage)
	}
	if resp.Usage.Estimated {
		t.Error("reported usage flagged as estimated")
	}
	if gotReq.Stream {
		t.Error("blocking call requested streaming")
	}
	if len(gotReq.Messages) != 2 {
		t.Errorf("messages sent: got %d, want 2", len(gotReq.Messages))
	}
	if last := gotReq.Messages[len(gotReq.Messages)-1]; last.Content != "question" {
		t.Errorf("last message: got %q, want the user message", last.Content)
	}
}

func TestOllamaGenerateEstimatesMissingUsage(t *testing.T) {
	p := ollamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: "answer text"},
			Done:    true,
		})
	})

	resp, err := p.Generate(context.Background(), Request{Model: "llama3", UserMessage: "hello world"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !resp.Usage.Estimated {
		t.Error("missing usage not estimated")
	}
	if resp.Usage.TotalTokens == 0 {
		t.Error("estimated usage is zero")
	}
}

func TestOllamaGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		status   int
		wantCode Code
	}{
		{429, CodeRateLimited},
		{500, CodeServerError},
		{404, CodeNotFound},
	}

	for _, tt := range tests {
		p := ollamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		})
		_, err := p.Generate(context.Background(), Request{Model: "llama3", UserMessage: "hi"})
		var pe *Error
		if !errors.As(err, &pe) {
			t.Fatalf("status %d: got %v, want a provider error", tt.status, err)
		}
		if pe.Code != tt.wantCode {
			t.Errorf("status %d: got %s, want %s", tt.status, pe.Code, tt.wantCode)
		}
	}
}

func TestOllamaGenerateConnectionRefused(t *testing.T) {
	p := NewOllama(Credentials{BaseURL: "http://127.0.0.1:1"}, Config{})
	_, err := p.Generate(context.Background(), Request{Model: "llama3", UserMessage: "hi"})
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want a provider error", err)
	}
	if pe.Code != CodeConnectionError || !pe.Retryable {
		t.Errorf("got %s retryable=%t, want CONNECTION_ERROR retryable", pe.Code, pe.Retryable)
	}
}

func TestOllamaGenerateStream(t *testing.T) {
	p := ollamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(ollamaChatResponse{Message: ollamaMessage{Content: "Hel"}})
		enc.Encode(ollamaChatResponse{Message: ollamaMessage{Content: "lo"}})
		enc.Encode(ollamaChatResponse{Done: true, DoneReason: "stop", PromptEvalCount: 3, EvalCount: 2})
	})

	ch, err := p.GenerateStream(context.Background(), Request{Model: "llama3", UserMessage: "hi"})
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

	if chunks[0].Delta != "Hel" || chunks[0].Content != "Hel" {
		t.Errorf("chunk 0: %+v", chunks[0])
	}
	if chunks[1].Delta != "lo" || chunks[1].Content != "Hello" {
		t.Errorf("chunk 1: %+v", chunks[1])
	}

	final := chunks[2]
	if final.Delta != "" {
		t.Errorf("final chunk carries a delta: %q", final.Delta)
	}
	if final.FinishReason != "stop" {
		t.Errorf("finish reason: got %q", final.FinishReason)
	}
	if final.Usage == nil || final.Usage.TotalTokens != 5 {
		t.Errorf("final usage: %+v", final.Usage)
	}
	for _, c := range chunks {
		if c.ID != chunks[0].ID {
			t.Error("chunk ids differ within one stream")
		}
	}
}

func TestOllamaStreamCancellation(t *testing.T) {
	blocker := make(chan struct{})
	p := ollamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(ollamaChatResponse{Message: ollamaMessage{Content: "start"}})
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-blocker
	})
	defer close(blocker)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.GenerateStream(ctx, Request{Model: "llama3", UserMessage: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	first, ok := <-ch
	if !ok || first.Delta != "start" {
		t.Fatalf("first chunk: %+v ok=%t", first, ok)
	}

	cancel()
	// The channel must close rather than hang after cancellation.
	for range ch {
	}
}

func TestOllamaModerateNotSupported(t *testing.T) {
	p := NewOllama(Credentials{}, Config{})
	_, err := p.Moderate(context.Background(), "anything")
	if !errors.Is(err, ErrModerationNotSupported) {
		t.Errorf("got %v, want ErrModerationNotSupported", err)
	}
}

func TestOllamaStreamDroppedConnection(t *testing.T) {
	p := ollamaTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Two content frames, then the connection closes with no done
		// frame.
		enc := json.NewEncoder(w)
		enc.Encode(ollamaChatResponse{Message: ollamaMessage{Content: "par"}})
		enc.Encode(ollamaChatResponse{Message: ollamaMessage{Content: "tial"}})
	})

	ch, err := p.GenerateStream(context.Background(), Request{Model: "llama3", UserMessage: "hi"})
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
