package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ankitjan/rules-engine/internal/rule"
)

func TestCompare_Equality(t *testing.T) {
	assert.True(t, Compare("gold", rule.OpEQ, "gold"))
	assert.False(t, Compare("gold", rule.OpEQ, "silver"))
	assert.True(t, Compare(42, rule.OpEQ, "42"))
	assert.True(t, Compare(float64(42), rule.OpEQ, int64(42)))
	assert.True(t, Compare(true, rule.OpEQ, "true"))

	assert.True(t, Compare(nil, rule.OpEQ, nil))
	assert.False(t, Compare(nil, rule.OpEQ, "x"))
	assert.False(t, Compare("x", rule.OpEQ, nil))
}

func TestCompare_NEIsNegatedEQ(t *testing.T) {
	pairs := [][2]any{
		{"gold", "gold"},
		{"gold", "silver"},
		{42, "42"},
		{nil, nil},
		{nil, "x"},
	}
	for _, p := range pairs {
		assert.Equal(t, !Compare(p[0], rule.OpEQ, p[1]), Compare(p[0], rule.OpNE, p[1]),
			"NE must be the complement of EQ for %v vs %v", p[0], p[1])
	}
}

func TestCompare_Ordering(t *testing.T) {
	assert.True(t, Compare(720, rule.OpGT, 700))
	assert.False(t, Compare(700, rule.OpGT, 700))
	assert.True(t, Compare(700, rule.OpGE, 700))
	assert.True(t, Compare(699, rule.OpLT, 700))
	assert.True(t, Compare("699.5", rule.OpLE, 700))

	// Decimal comparison, not float: these differ only past float64 precision.
	assert.True(t, Compare("0.30000000000000000001", rule.OpGT, "0.3"))

	assert.False(t, Compare("abc", rule.OpGT, 1))
	assert.False(t, Compare(1, rule.OpLT, "abc"))
	assert.False(t, Compare(nil, rule.OpGT, 1))
}

func TestCompare_OrderingDuality(t *testing.T) {
	pairs := [][2]any{{1, 2}, {2, 1}, {2, 2}, {"3.14", 3}, {-1, "0"}}
	for _, p := range pairs {
		assert.Equal(t, !Compare(p[0], rule.OpLT, p[1]), Compare(p[0], rule.OpGE, p[1]),
			"GE must be the complement of LT for %v vs %v", p[0], p[1])
		assert.Equal(t, !Compare(p[0], rule.OpGT, p[1]), Compare(p[0], rule.OpLE, p[1]),
			"LE must be the complement of GT for %v vs %v", p[0], p[1])
	}
}

func TestCompare_Substring(t *testing.T) {
	assert.True(t, Compare("Premium Customer", rule.OpContains, "premium"))
	assert.False(t, Compare("Premium Customer", rule.OpContains, "basic"))
	assert.True(t, Compare("Premium Customer", rule.OpStartsWith, "PRE"))
	assert.True(t, Compare("Premium Customer", rule.OpEndsWith, "customer"))
	assert.False(t, Compare(nil, rule.OpContains, "x"))
	assert.False(t, Compare("x", rule.OpStartsWith, nil))
}

func TestCompare_Membership(t *testing.T) {
	regions := []any{"EU", "US"}
	assert.True(t, Compare("EU", rule.OpIn, regions))
	assert.False(t, Compare("APAC", rule.OpIn, regions))
	assert.True(t, Compare("APAC", rule.OpNotIn, regions))
	assert.False(t, Compare("EU", rule.OpNotIn, regions))

	// Element equality uses the EQ rule, so numeric forms match.
	assert.True(t, Compare(2, rule.OpIn, []any{float64(1), float64(2)}))

	assert.False(t, Compare("EU", rule.OpIn, "EU"))
	assert.False(t, Compare("EU", rule.OpIn, nil))
}

func TestCompare_Emptiness(t *testing.T) {
	assert.True(t, Compare(nil, rule.OpIsEmpty, nil))
	assert.True(t, Compare("", rule.OpIsEmpty, nil))
	assert.True(t, Compare("   ", rule.OpIsEmpty, nil))
	assert.True(t, Compare([]any{}, rule.OpIsEmpty, nil))
	assert.True(t, Compare(map[string]any{}, rule.OpIsEmpty, nil))

	assert.False(t, Compare("x", rule.OpIsEmpty, nil))
	assert.False(t, Compare([]any{1}, rule.OpIsEmpty, nil))
	assert.False(t, Compare(0, rule.OpIsEmpty, nil))

	assert.True(t, Compare("x", rule.OpIsNotEmpty, nil))
	assert.False(t, Compare(nil, rule.OpIsNotEmpty, nil))
}

func TestCompare_UnknownOperator(t *testing.T) {
	assert.False(t, Compare(1, rule.Operator("BETWIXT"), 2))
}
