// Package evaluator walks rule trees against a resolved field-value map.
// Evaluation is pure and never raises: malformed nodes degrade to false
// with a warning, so the evaluator is safe to invoke concurrently from
// independent executions.
package evaluator

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ankitjan/rules-engine/internal/compare"
	"github.com/ankitjan/rules-engine/internal/rule"
)

var log = logrus.WithField("component", "evaluator")

// Trace records one visited node during evaluation: its tree path, a short
// description, the boolean outcome, and the compared values for conditions.
type Trace struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	Outcome     bool   `json:"outcome"`
	Actual      any    `json:"actual,omitempty"`
	Expected    any    `json:"expected,omitempty"`
}

// Evaluate computes the rule outcome for the given field values.
// A nil rule is false; a group with no items is true.
func Evaluate(root *rule.Group, values map[string]any) bool {
	if root == nil {
		return false
	}
	return evalGroup(root, values, "root", nil)
}

// EvaluateWithTrace computes the outcome and returns one trace entry per
// visited node, in visitation order. Short-circuited items are not visited
// and leave no trace.
func EvaluateWithTrace(root *rule.Group, values map[string]any) (bool, []Trace) {
	if root == nil {
		return false, nil
	}
	traces := make([]Trace, 0, 8)
	outcome := evalGroup(root, values, "root", &traces)
	return outcome, traces
}

func evalGroup(g *rule.Group, values map[string]any, path string, traces *[]Trace) bool {
	combinator := g.Combinator
	switch combinator {
	case rule.And, rule.Or:
	default:
		log.WithField("combinator", combinator).Warn("unknown combinator, treating as AND")
		combinator = rule.And
	}

	// Group entries are written pre-order so the trace reflects visitation
	// order; the outcome is backfilled once the children have run.
	slot := -1
	if traces != nil {
		*traces = append(*traces, Trace{
			Path:        path,
			Description: fmt.Sprintf("%s group (%d items)", combinator, len(g.Items)),
		})
		slot = len(*traces) - 1
	}

	// An empty group is vacuously true.
	result := true
	for i, item := range g.Items {
		itemPath := fmt.Sprintf("%s.rules[%d]", path, i)
		var itemResult bool
		switch {
		case item.Group != nil:
			itemResult = evalGroup(item.Group, values, itemPath, traces)
		case item.Condition != nil:
			itemResult = evalCondition(item.Condition, values, itemPath, traces)
		default:
			log.WithField("path", itemPath).Warn("empty rule item, treating as false")
			itemResult = false
		}
		if i == 0 {
			result = itemResult
		} else if combinator == rule.And {
			result = result && itemResult
		} else {
			result = result || itemResult
		}
		if combinator == rule.And && !result {
			break
		}
		if combinator == rule.Or && result {
			break
		}
	}
	if g.Not {
		result = !result
	}
	if slot >= 0 {
		(*traces)[slot].Outcome = result
	}
	return result
}

func evalCondition(c *rule.Condition, values map[string]any, path string, traces *[]Trace) bool {
	actual, ok := values[c.Field]
	if !ok {
		actual = nil
	}
	result := compare.Compare(actual, c.Operator, c.Value)
	if c.Not {
		result = !result
	}
	if traces != nil {
		desc := fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
		if rule.Valueless(c.Operator) {
			desc = fmt.Sprintf("%s %s", c.Field, c.Operator)
		}
		if c.Not {
			desc = "NOT " + desc
		}
		*traces = append(*traces, Trace{
			Path:        path,
			Description: desc,
			Outcome:     result,
			Actual:      actual,
			Expected:    c.Value,
		})
	}
	return result
}
