package confidence

import (
	"math"
	"testing"
)

func TestAggregateEmpty(t *testing.T) {
	score := Aggregate(nil)
	if score.Overall != 0 {
		t.Errorf("overall: got %f, want 0", score.Overall)
	}
	if score.PerSource == nil || len(score.PerSource) != 0 {
		t.Errorf("per-source: got %v, want empty map", score.PerSource)
	}
}

func TestAggregateMean(t *testing.T) {
	tests := []struct {
		name    string
		sources []Source
		want    float64
	}{
		{"single", []Source{{ID: "a", RelevanceScore: 0.7}}, 0.7},
		{"two", []Source{{ID: "a", RelevanceScore: 0.8}, {ID: "b", RelevanceScore: 0.4}}, 0.6},
		{"three", []Source{{ID: "a", RelevanceScore: 0.9}, {ID: "b", RelevanceScore: 0.6}, {ID: "c", RelevanceScore: 0.3}}, 0.6},
		{"all zero", []Source{{ID: "a"}, {ID: "b"}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := Aggregate(tt.sources)
			if math.Abs(score.Overall-tt.want) > 1e-9 {
				t.Errorf("overall: got %f, want %f", score.Overall, tt.want)
			}
			if len(score.PerSource) != len(tt.sources) {
				t.Errorf("per-source size: got %d, want %d", len(score.PerSource), len(tt.sources))
			}
			for _, s := range tt.sources {
				if got := score.PerSource[s.ID]; got != s.RelevanceScore {
					t.Errorf("per-source[%s]: got %f, want %f", s.ID, got, s.RelevanceScore)
				}
			}
		})
	}
}
