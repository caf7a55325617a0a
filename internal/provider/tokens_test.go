package provider

import "testing"

func TestEstimateTokensRatios(t *testing.T) {
	text := "aaaaaaaaaaaaaa" // 14 chars

	tests := []struct {
		backend Backend
		want    int
	}{
		{BackendOpenAI, 4},    // ceil(14/4.0)
		{BackendAnthropic, 4}, // ceil(14/3.5)
		{BackendOllama, 4},
		{Backend("mystery"), 4},
	}
	for _, tt := range tests {
		if got := estimateTokens(tt.backend, text); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.backend, got, tt.want)
		}
	}

	if got := estimateTokens(BackendAnthropic, "aaaaaaaaaaaaaaa"); got != 5 {
		t.Errorf("anthropic 15 chars: got %d, want ceil(15/3.5)=5", got)
	}
	if got := estimateTokens(BackendOpenAI, ""); got != 0 {
		t.Errorf("empty: got %d, want 0", got)
	}
}

func TestEnsureUsageKeepsReported(t *testing.T) {
	u := ensureUsage(BackendOpenAI, Usage{InputTokens: 100, OutputTokens: 20}, nil, "ignored")
	if u.Estimated {
		t.Error("reported usage flagged as estimated")
	}
	if u.TotalTokens != 120 {
		t.Errorf("total: got %d, want 120", u.TotalTokens)
	}
}

func TestEnsureUsageEstimatesWhenMissing(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "12345678"},   // 2 tokens at 4 chars/token
		{Role: RoleUser, Content: "123456789012"}, // 3 tokens
	}
	u := ensureUsage(BackendOpenAI, Usage{}, msgs, "1234") // 1 token

	if !u.Estimated {
		t.Error("estimate not flagged")
	}
	if u.InputTokens != 5 {
		t.Errorf("input: got %d, want 5", u.InputTokens)
	}
	if u.OutputTokens != 1 {
		t.Errorf("output: got %d, want 1", u.OutputTokens)
	}
	if u.TotalTokens != 6 {
		t.Errorf("total: got %d, want 6", u.TotalTokens)
	}
}
