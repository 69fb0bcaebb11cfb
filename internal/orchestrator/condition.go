package orchestrator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/meow-stack/meowctl/internal/template"
	"github.com/meow-stack/meowctl/internal/types"
)

// evaluateCondition decides a conditional step's branch, dispatching
// on the tagged union's populated member.
func evaluateCondition(c *types.Condition, outputs template.Outputs) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	if c.Legacy != "" {
		return evaluateLegacy(c.Legacy, outputs), nil
	}
	return evaluateGroup(c.Group, outputs)
}

// evaluateLegacy resolves {stepId.field} references in the free-text
// legacy expression and treats the literal string "true" as the only
// truthy form, a minimal compatibility shim for older workflows that
// carry free-text boolean expressions instead of structured groups.
func evaluateLegacy(expr string, outputs template.Outputs) bool {
	resolved := strings.TrimSpace(template.Resolve(expr, outputs))
	return strings.EqualFold(resolved, "true")
}

func evaluateGroup(g *types.ConditionGroup, outputs template.Outputs) (bool, error) {
	var results []bool
	for _, rule := range g.Rules {
		ok, err := evaluateRule(rule, outputs)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	for i := range g.Groups {
		ok, err := evaluateGroup(&g.Groups[i], outputs)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}

	switch g.Combinator {
	case types.CombinatorOR:
		for _, ok := range results {
			if ok {
				return true, nil
			}
		}
		return false, nil
	default: // AND, and the empty-combinator fallback
		for _, ok := range results {
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

func evaluateRule(r types.ConditionRule, outputs template.Outputs) (bool, error) {
	val, exists := template.Lookup(outputs, r.Field)

	switch r.Operator {
	case types.OpExists:
		return exists, nil
	case types.OpEq:
		return exists && equalValues(val, r.Value), nil
	case types.OpNeq:
		return !exists || !equalValues(val, r.Value), nil
	case types.OpLt, types.OpLe, types.OpGt, types.OpGe:
		return compareNumeric(r.Operator, val, r.Value)
	case types.OpContains:
		return containsValue(val, r.Value), nil
	case types.OpStartsWith:
		return strings.HasPrefix(toString(val), toString(r.Value)), nil
	case types.OpEndsWith:
		return strings.HasSuffix(toString(val), toString(r.Value)), nil
	case types.OpIn:
		list, ok := r.Value.([]any)
		if !ok {
			return false, nil
		}
		for _, item := range list {
			if equalValues(val, item) {
				return true, nil
			}
		}
		return false, nil
	case types.OpNotIn:
		in, err := evaluateRule(types.ConditionRule{Field: r.Field, Operator: types.OpIn, Value: r.Value}, outputs)
		return !in, err
	default:
		return false, fmt.Errorf("unsupported condition operator %q", r.Operator)
	}
}

func equalValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func compareNumeric(op types.Operator, a, b any) (bool, error) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return false, fmt.Errorf("operator %q requires numeric operands", op)
	}
	switch op {
	case types.OpLt:
		return af < bf, nil
	case types.OpLe:
		return af <= bf, nil
	case types.OpGt:
		return af > bf, nil
	case types.OpGe:
		return af >= bf, nil
	}
	return false, fmt.Errorf("unreachable operator %q", op)
}

func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, toString(needle))
	case []any:
		for _, item := range h {
			if equalValues(item, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
