package provider

import "math"

// charsPerToken holds the per-backend character-to-token ratio used when a
// backend does not report usage. The ratios silently affect trimming and
// cost accounting, so they are explicit here rather than buried in each
// backend.
var charsPerToken = map[Backend]float64{
	BackendOpenAI:    4.0,
	BackendAnthropic: 3.5,
	BackendOllama:    4.0,
}

// estimateTokens returns ceil(len/ratio) for the backend.
func estimateTokens(backend Backend, text string) int {
	if len(text) == 0 {
		return 0
	}
	ratio, ok := charsPerToken[backend]
	if !ok {
		ratio = 4.0
	}
	return int(math.Ceil(float64(len(text)) / ratio))
}

// ensureUsage fills in a local estimate when the backend reported nothing,
// so usage is always populated.
func ensureUsage(backend Backend, u Usage, msgs []Message, output string) Usage {
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		for _, m := range msgs {
			u.InputTokens += estimateTokens(backend, m.Content)
		}
		u.OutputTokens = estimateTokens(backend, output)
		u.Estimated = true
	}
	u.TotalTokens = u.InputTokens + u.OutputTokens
	return u
}
