package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitjan/rules-engine/internal/rule"
)

func cond(field string, op rule.Operator, value any) rule.Item {
	return rule.Item{Condition: &rule.Condition{Field: field, Operator: op, Value: value}}
}

func TestEvaluate(t *testing.T) {
	root := &rule.Group{
		Combinator: rule.And,
		Items: []rule.Item{
			cond("creditScore", rule.OpGT, 700),
			{Group: &rule.Group{
				Combinator: rule.Or,
				Items: []rule.Item{
					cond("region", rule.OpIn, []any{"EU", "US"}),
					cond("vipFlag", rule.OpEQ, true),
				},
			}},
		},
	}

	assert.True(t, Evaluate(root, map[string]any{
		"creditScore": float64(720), "region": "APAC", "vipFlag": true,
	}))
	assert.True(t, Evaluate(root, map[string]any{
		"creditScore": float64(720), "region": "EU", "vipFlag": false,
	}))
	assert.False(t, Evaluate(root, map[string]any{
		"creditScore": float64(650), "region": "EU", "vipFlag": true,
	}))
	assert.False(t, Evaluate(root, map[string]any{
		"creditScore": float64(720), "region": "APAC", "vipFlag": false,
	}))
}

func TestEvaluate_IsPure(t *testing.T) {
	root := &rule.Group{Combinator: rule.And, Items: []rule.Item{
		cond("tier", rule.OpEQ, "gold"),
	}}
	values := map[string]any{"tier": "gold"}
	for i := 0; i < 5; i++ {
		assert.True(t, Evaluate(root, values))
	}
	assert.Equal(t, map[string]any{"tier": "gold"}, values)
}

func TestEvaluate_EdgeCases(t *testing.T) {
	assert.False(t, Evaluate(nil, nil))
	assert.True(t, Evaluate(&rule.Group{Combinator: rule.And}, nil))
	assert.True(t, Evaluate(&rule.Group{Combinator: rule.Or}, nil))

	// An empty negated group is false.
	assert.False(t, Evaluate(&rule.Group{Combinator: rule.And, Not: true}, nil))

	// Unknown combinator degrades to AND.
	g := &rule.Group{Combinator: "XOR", Items: []rule.Item{
		cond("a", rule.OpEQ, 1),
		cond("b", rule.OpEQ, 2),
	}}
	assert.True(t, Evaluate(g, map[string]any{"a": 1, "b": 2}))
	assert.False(t, Evaluate(g, map[string]any{"a": 1, "b": 3}))
}

func TestEvaluate_MissingFieldIsNull(t *testing.T) {
	g := &rule.Group{Combinator: rule.And, Items: []rule.Item{
		cond("ghost", rule.OpIsEmpty, nil),
	}}
	assert.True(t, Evaluate(g, map[string]any{}))

	g = &rule.Group{Combinator: rule.And, Items: []rule.Item{
		cond("ghost", rule.OpEQ, "x"),
	}}
	assert.False(t, Evaluate(g, map[string]any{}))
}

func TestEvaluate_Negation(t *testing.T) {
	inner := cond("tier", rule.OpEQ, "gold")
	values := map[string]any{"tier": "gold"}

	notCond := rule.Item{Condition: &rule.Condition{Field: "tier", Operator: rule.OpEQ, Value: "gold", Not: true}}
	g := &rule.Group{Combinator: rule.And, Items: []rule.Item{notCond}}
	assert.False(t, Evaluate(g, values))

	notGroup := &rule.Group{Combinator: rule.And, Not: true, Items: []rule.Item{inner}}
	assert.False(t, Evaluate(notGroup, values))
	assert.True(t, Evaluate(notGroup, map[string]any{"tier": "silver"}))
}

func TestEvaluateWithTrace_ShortCircuit(t *testing.T) {
	root := &rule.Group{Combinator: rule.And, Items: []rule.Item{
		cond("a", rule.OpEQ, 1),
		cond("b", rule.OpEQ, 2),
		cond("c", rule.OpEQ, 3),
	}}

	outcome, traces := EvaluateWithTrace(root, map[string]any{"a": 9, "b": 2, "c": 3})
	assert.False(t, outcome)
	// Root plus the first condition only; b and c are never visited.
	require.Len(t, traces, 2)
	assert.Equal(t, "root", traces[0].Path)
	assert.False(t, traces[0].Outcome)
	assert.Equal(t, "root.rules[0]", traces[1].Path)
	assert.False(t, traces[1].Outcome)

	orRoot := &rule.Group{Combinator: rule.Or, Items: []rule.Item{
		cond("a", rule.OpEQ, 1),
		cond("b", rule.OpEQ, 2),
	}}
	outcome, traces = EvaluateWithTrace(orRoot, map[string]any{"a": 1, "b": 0})
	assert.True(t, outcome)
	require.Len(t, traces, 2)
}

func TestEvaluateWithTrace_Entries(t *testing.T) {
	root := &rule.Group{Combinator: rule.And, Items: []rule.Item{
		cond("creditScore", rule.OpGT, 700),
		{Group: &rule.Group{Combinator: rule.Or, Items: []rule.Item{
			cond("region", rule.OpIn, []any{"EU"}),
		}}},
	}}

	outcome, traces := EvaluateWithTrace(root, map[string]any{
		"creditScore": float64(720), "region": "EU",
	})
	assert.True(t, outcome)
	require.Len(t, traces, 4)

	assert.Equal(t, "root", traces[0].Path)
	assert.True(t, traces[0].Outcome)

	assert.Equal(t, "root.rules[0]", traces[1].Path)
	assert.Equal(t, "creditScore GT 700", traces[1].Description)
	assert.Equal(t, float64(720), traces[1].Actual)
	assert.Equal(t, 700, traces[1].Expected)

	assert.Equal(t, "root.rules[1]", traces[2].Path)
	assert.Equal(t, "root.rules[1].rules[0]", traces[3].Path)
}

func TestEvaluateWithTrace_SameOutcomeAsEvaluate(t *testing.T) {
	root := &rule.Group{Combinator: rule.Or, Items: []rule.Item{
		cond("x", rule.OpLE, 10),
		cond("name", rule.OpStartsWith, "pre"),
	}}
	for _, values := range []map[string]any{
		{"x": 5, "name": "other"},
		{"x": 50, "name": "premium"},
		{"x": 50, "name": "other"},
		{},
	} {
		traced, _ := EvaluateWithTrace(root, values)
		assert.Equal(t, Evaluate(root, values), traced)
	}
}
