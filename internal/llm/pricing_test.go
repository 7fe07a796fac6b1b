package llm

import (
	"math"
	"testing"
)

func TestLookupCost(t *testing.T) {
	tests := []struct {
		model string
		want  *ModelCost
	}{
		{"gpt-oss-20b", &ModelCost{0.05, 0.2}},
		{"GPT-OSS-20B", &ModelCost{0.05, 0.2}},
		{"claude-sonnet-4-5-20250929", &ModelCost{3, 15}},
		{"gpt-5-mini-2025-08-07", &ModelCost{0.25, 2}},
		{"unknown-model", nil},
	}
	for _, tt := range tests {
		got := LookupCost(tt.model)
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("LookupCost(%q) = %+v, want nil", tt.model, got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("LookupCost(%q) = %+v, want %+v", tt.model, got, tt.want)
		}
	}
}

func TestModelCost_Cost(t *testing.T) {
	c := ModelCost{InputPerMTok: 2, OutputPerMTok: 8}
	got := c.Cost(500_000, 250_000)
	if math.Abs(got-3.0) > 1e-9 {
		t.Fatalf("Cost = %f, want 3.0", got)
	}
}
