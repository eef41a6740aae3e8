package depgraph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitjan/rules-engine/internal/field"
)

func fetched(name string, deps ...string) *field.Config {
	return &field.Config{
		Name: name, Type: field.TypeNumber,
		Dependencies: deps,
		DataService: &field.ServiceConfig{
			Type: field.ServiceREST, Endpoint: "https://api.example.com/" + name, Method: "GET",
		},
		MapperExpression: "value",
	}
}

func calculated(name, expression string, deps ...string) *field.Config {
	return &field.Config{
		Name: name, Type: field.TypeNumber, IsCalculated: true,
		Dependencies: deps,
		Calculator:   &field.CalculatorConfig{Type: field.CalcExpression, Expression: expression},
	}
}

func static(name string, def any) *field.Config {
	return &field.Config{Name: name, Type: field.TypeNumber, DefaultValue: def}
}

func TestBuild_RejectsDuplicates(t *testing.T) {
	_, err := Build([]*field.Config{static("a", 1), static("a", 2)})
	require.Error(t, err)
}

func TestBuild_DetectsCycle(t *testing.T) {
	_, err := Build([]*field.Config{
		calculated("a", "b + 1", "b"),
		calculated("b", "c + 1", "c"),
		calculated("c", "a + 1", "a"),
	})
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, cerr.Fields, 4)
	assert.Equal(t, cerr.Fields[0], cerr.Fields[len(cerr.Fields)-1])
}

func TestBuild_SelfCycle(t *testing.T) {
	_, err := Build([]*field.Config{calculated("a", "a + 1", "a")})
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"a", "a"}, cerr.Fields)
}

func TestTopoOrder_Deterministic(t *testing.T) {
	configs := []*field.Config{
		calculated("total", "base + bonus", "base", "bonus"),
		calculated("bonus", "base * 0.1", "base"),
		static("base", 100),
		static("floor", 0),
	}
	g, err := Build(configs)
	require.NoError(t, err)

	want := g.TopoOrder()
	assert.Equal(t, []string{"base", "bonus", "floor", "total"}, want)
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, g.TopoOrder())
	}
}

func TestBuildPlan_Partition(t *testing.T) {
	g, err := Build([]*field.Config{
		static("threshold", 700),
		fetched("creditScore"),
		fetched("income"),
		fetched("accountDetail", "accountId"),
		fetched("accountId"),
		calculated("riskScore", "creditScore * 0.6", "creditScore"),
	})
	require.NoError(t, err)

	plan, err := g.BuildPlan(nil)
	require.NoError(t, err)

	want := &Plan{
		Static: []string{"threshold"},
		Groups: []ParallelGroup{{Fields: []string{"accountId", "creditScore", "income"}}},
		Chains: []SequentialChain{{Fields: []string{"accountDetail"}}},
		Calculated: []string{"riskScore"},
	}
	assert.Empty(t, cmp.Diff(want, plan))
}

func TestBuildPlan_SuppliedValuesAreAuthoritative(t *testing.T) {
	g, err := Build([]*field.Config{
		fetched("creditScore"),
		calculated("riskScore", "creditScore * 0.6", "creditScore"),
	})
	require.NoError(t, err)

	plan, err := g.BuildPlan(map[string]struct{}{"creditScore": {}, "riskScore": {}})
	require.NoError(t, err)
	assert.Empty(t, plan.Static)
	assert.Empty(t, plan.Groups)
	assert.Empty(t, plan.Chains)
	assert.Empty(t, plan.Calculated)
}

func TestBuildPlan_ChainMerging(t *testing.T) {
	// a and b fetch independently; c waits on a, d waits on b, e waits on
	// both c and d, so the two chains merge into one.
	g, err := Build([]*field.Config{
		fetched("a"),
		fetched("b"),
		fetched("c", "a"),
		fetched("d", "b"),
		fetched("e", "c", "d"),
	})
	require.NoError(t, err)

	plan, err := g.BuildPlan(nil)
	require.NoError(t, err)
	require.Len(t, plan.Groups, 1)
	assert.Equal(t, []string{"a", "b"}, plan.Groups[0].Fields)
	require.Len(t, plan.Chains, 1)
	assert.Equal(t, []string{"c", "d", "e"}, plan.Chains[0].Fields)
}

func TestBuildPlan_IndependentChainsStaySeparate(t *testing.T) {
	g, err := Build([]*field.Config{
		fetched("a"),
		fetched("b"),
		fetched("c", "a"),
		fetched("d", "b"),
	})
	require.NoError(t, err)

	plan, err := g.BuildPlan(nil)
	require.NoError(t, err)
	require.Len(t, plan.Chains, 2)
	assert.Equal(t, []string{"c"}, plan.Chains[0].Fields)
	assert.Equal(t, []string{"d"}, plan.Chains[1].Fields)
}

func TestBuildPlan_ExternalDependencyNeedsInput(t *testing.T) {
	g, err := Build([]*field.Config{fetched("accountDetail", "accountId")})
	require.NoError(t, err)

	_, err = g.BuildPlan(nil)
	require.Error(t, err)

	plan, err := g.BuildPlan(map[string]struct{}{"accountId": {}})
	require.NoError(t, err)
	require.Len(t, plan.Groups, 1)
	assert.Equal(t, []string{"accountDetail"}, plan.Groups[0].Fields)
}

func TestBuildPlan_FetchCannotDependOnCalculated(t *testing.T) {
	g, err := Build([]*field.Config{
		fetched("base"),
		calculated("derived", "base * 2", "base"),
		fetched("late", "derived"),
	})
	require.NoError(t, err)

	_, err = g.BuildPlan(nil)
	require.Error(t, err)

	// Supplying the calculated value removes the conflict.
	_, err = g.BuildPlan(map[string]struct{}{"derived": {}})
	require.NoError(t, err)
}
