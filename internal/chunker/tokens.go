package chunker

// TokenEstimator converts text to an estimated token count. Estimates are
// deterministic so chunk sizing is reproducible across runs.
type TokenEstimator func(text string) int

// charsPerToken is the byte-to-token ratio assumed when converting a token
// budget into a character distance (overlap targeting, minimum-size deficits).
const charsPerToken = 4

// EstimateTokens is the default estimator: ceil(len/4). Matches the
// approximation used by the indexing pipeline so chunk budgets line up with
// context-window accounting.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}
