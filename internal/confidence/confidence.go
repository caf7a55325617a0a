// Package confidence turns a retrieval result set into a single trust
// signal plus per-source scores, used by callers to decide whether to
// present citations or fall back to general knowledge.
package confidence

// Source is one provenance record with its relevance score.
type Source struct {
	ID             string
	RelevanceScore float64
}

// Score is the aggregate trust signal. Overall is in [0,1].
type Score struct {
	Overall   float64
	PerSource map[string]float64
}

// Aggregate computes the arithmetic mean of the source scores. Empty input
// yields zero overall and an empty per-source map.
//
// The mean is intentionally unweighted. Recency or diversity weighting and
// duplicate-document penalties are deliberate extension points, not
// implicit behavior.
func Aggregate(sources []Source) Score {
	perSource := make(map[string]float64, len(sources))
	if len(sources) == 0 {
		return Score{PerSource: perSource}
	}

	sum := 0.0
	for _, s := range sources {
		perSource[s.ID] = s.RelevanceScore
		sum += s.RelevanceScore
	}
	return Score{
		Overall:   sum / float64(len(sources)),
		PerSource: perSource,
	}
}
