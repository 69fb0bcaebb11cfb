package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meow-stack/meowctl/internal/template"
	"github.com/meow-stack/meowctl/internal/types"
)

func outputsFor(stepID string, fields map[string]any) template.Outputs {
	return template.Outputs{stepID: fields}
}

func TestEvaluateCondition_Operators(t *testing.T) {
	outputs := outputsFor("a", map[string]any{
		"output": "yes, proceed",
		"count":  float64(5),
		"tags":   []any{"x", "y"},
	})

	cases := []struct {
		name string
		rule types.ConditionRule
		want bool
	}{
		{"eq match", types.ConditionRule{Field: "a.count", Operator: types.OpEq, Value: float64(5)}, true},
		{"eq mismatch", types.ConditionRule{Field: "a.count", Operator: types.OpEq, Value: float64(6)}, false},
		{"neq", types.ConditionRule{Field: "a.count", Operator: types.OpNeq, Value: float64(6)}, true},
		{"lt", types.ConditionRule{Field: "a.count", Operator: types.OpLt, Value: float64(10)}, true},
		{"le", types.ConditionRule{Field: "a.count", Operator: types.OpLe, Value: float64(5)}, true},
		{"gt", types.ConditionRule{Field: "a.count", Operator: types.OpGt, Value: float64(1)}, true},
		{"ge", types.ConditionRule{Field: "a.count", Operator: types.OpGe, Value: float64(5)}, true},
		{"contains string", types.ConditionRule{Field: "a.output", Operator: types.OpContains, Value: "yes"}, true},
		{"contains slice", types.ConditionRule{Field: "a.tags", Operator: types.OpContains, Value: "x"}, true},
		{"startsWith", types.ConditionRule{Field: "a.output", Operator: types.OpStartsWith, Value: "yes"}, true},
		{"endsWith", types.ConditionRule{Field: "a.output", Operator: types.OpEndsWith, Value: "proceed"}, true},
		{"in", types.ConditionRule{Field: "a.count", Operator: types.OpIn, Value: []any{float64(4), float64(5)}}, true},
		{"notIn", types.ConditionRule{Field: "a.count", Operator: types.OpNotIn, Value: []any{float64(4)}}, true},
		{"exists true", types.ConditionRule{Field: "a.output", Operator: types.OpExists}, true},
		{"exists false", types.ConditionRule{Field: "a.missing", Operator: types.OpExists}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := evaluateRule(tc.rule, outputs)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateGroup_ANDRequiresAll(t *testing.T) {
	outputs := outputsFor("a", map[string]any{"output": "yes", "count": float64(3)})
	g := &types.ConditionGroup{
		Combinator: types.CombinatorAND,
		Rules: []types.ConditionRule{
			{Field: "a.output", Operator: types.OpEq, Value: "yes"},
			{Field: "a.count", Operator: types.OpGt, Value: float64(10)},
		},
	}
	ok, err := evaluateGroup(g, outputs)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateGroup_ORRequiresOne(t *testing.T) {
	outputs := outputsFor("a", map[string]any{"output": "yes", "count": float64(3)})
	g := &types.ConditionGroup{
		Combinator: types.CombinatorOR,
		Rules: []types.ConditionRule{
			{Field: "a.output", Operator: types.OpEq, Value: "no"},
			{Field: "a.count", Operator: types.OpLt, Value: float64(10)},
		},
	}
	ok, err := evaluateGroup(g, outputs)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateGroup_NestedGroups(t *testing.T) {
	outputs := outputsFor("a", map[string]any{"output": "no", "count": float64(3)})
	g := &types.ConditionGroup{
		Combinator: types.CombinatorOR,
		Rules: []types.ConditionRule{
			{Field: "a.output", Operator: types.OpEq, Value: "yes"},
		},
		Groups: []types.ConditionGroup{
			{
				Combinator: types.CombinatorAND,
				Rules: []types.ConditionRule{
					{Field: "a.count", Operator: types.OpLt, Value: float64(10)},
					{Field: "a.count", Operator: types.OpGt, Value: float64(0)},
				},
			},
		},
	}
	ok, err := evaluateGroup(g, outputs)
	require.NoError(t, err)
	require.True(t, ok, "nested AND group satisfies the outer OR")
}

func TestEvaluateCondition_LegacyStringExpression(t *testing.T) {
	outputs := outputsFor("a", map[string]any{"output": "true"})
	c := &types.Condition{Legacy: "{a.output}"}
	ok, err := evaluateCondition(c, outputs)
	require.NoError(t, err)
	require.True(t, ok)

	outputsFalse := outputsFor("a", map[string]any{"output": "false"})
	ok, err = evaluateCondition(c, outputsFalse)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateCondition_RejectsMalformed(t *testing.T) {
	_, err := evaluateCondition(&types.Condition{}, template.Outputs{})
	require.Error(t, err)

	both := &types.Condition{Legacy: "x", Group: &types.ConditionGroup{}}
	_, err = evaluateCondition(both, template.Outputs{})
	require.Error(t, err)
}

func TestCompareNumeric_RejectsNonNumericOperands(t *testing.T) {
	_, err := compareNumeric(types.OpLt, "abc", float64(1))
	require.Error(t, err)
}
