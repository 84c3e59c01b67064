package graphline_test

import (
	"context"
	"testing"

	"github.com/graphline/graphline"
)

func TestEvaluateConditions(t *testing.T) {
	result := map[string]any{
		"score":  0.82,
		"count":  3,
		"label":  "approved",
		"tags":   []any{"finance", "asia"},
		"nested": map[string]any{"valid": true},
	}

	eval := graphline.NewEvaluator(nil)

	tests := []struct {
		name string
		cond *graphline.Condition
		want bool
	}{
		{"nil condition matches", nil, true},
		{"exists hit", graphline.When("$.score", graphline.OpExists, nil), true},
		{"exists miss", graphline.When("$.missing", graphline.OpExists, nil), false},
		{"truthy nested bool", graphline.When("$.nested.valid", graphline.OpTruthy, nil), true},
		{"default op is truthy", &graphline.Condition{Path: "$.label"}, true},
		{"eq string", graphline.When("$.label", graphline.OpEq, "approved"), true},
		{"eq numeric coercion", graphline.When("$.count", graphline.OpEq, 3.0), true},
		{"ne", graphline.When("$.label", graphline.OpNe, "rejected"), true},
		{"gt", graphline.When("$.score", graphline.OpGt, 0.5), true},
		{"gt false", graphline.When("$.score", graphline.OpGt, 0.9), false},
		{"gte boundary", graphline.When("$.count", graphline.OpGte, 3), true},
		{"lt", graphline.When("$.count", graphline.OpLt, 10), true},
		{"lte false", graphline.When("$.count", graphline.OpLte, 2), false},
		{"eq slice operands", graphline.When("$.tags", graphline.OpEq, []any{"finance", "asia"}), true},
		{"eq slice operands mismatch", graphline.When("$.tags", graphline.OpEq, []any{"finance"}), false},
		{"eq map operands", graphline.When("$.nested", graphline.OpEq, map[string]any{"valid": true}), true},
		{"eq slice against scalar", graphline.When("$.label", graphline.OpEq, []any{"approved"}), false},
		{"contains string", graphline.When("$.label", graphline.OpContains, "prov"), true},
		{"contains array", graphline.When("$.tags", graphline.OpContains, "asia"), true},
		{"contains array miss", graphline.When("$.tags", graphline.OpContains, "europe"), false},
		{
			"all",
			graphline.AllOf(
				graphline.When("$.score", graphline.OpGt, 0.5),
				graphline.When("$.label", graphline.OpEq, "approved"),
			),
			true,
		},
		{
			"all short-circuits false",
			graphline.AllOf(
				graphline.When("$.score", graphline.OpGt, 0.9),
				graphline.When("$.label", graphline.OpEq, "approved"),
			),
			false,
		},
		{
			"any",
			graphline.AnyOf(
				graphline.When("$.missing", graphline.OpExists, nil),
				graphline.When("$.count", graphline.OpEq, 3),
			),
			true,
		},
		{"not", graphline.NotOf(graphline.When("$.missing", graphline.OpExists, nil)), true},
		{"bad path is no match", graphline.When("$[", graphline.OpExists, nil), false},
		{"unknown op is no match", graphline.When("$.score", graphline.Op("between"), 1), false},
		{"type mismatch comparison is no match", graphline.When("$.label", graphline.OpGt, 1), false},
		{"empty leaf is no match", &graphline.Condition{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eval.Evaluate(context.Background(), tt.cond, result); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateAgainstNonMapResult(t *testing.T) {
	eval := graphline.NewEvaluator(nil)
	if !eval.Evaluate(context.Background(), graphline.When("$", graphline.OpEq, "plain"), "plain") {
		t.Error("root path should match a scalar result")
	}
	if eval.Evaluate(context.Background(), graphline.When("$.field", graphline.OpExists, nil), "plain") {
		t.Error("field access on a scalar should not match")
	}
}
