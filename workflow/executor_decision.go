package workflow

import (
	"context"
	"strings"
)

// Condition types understood by DecisionExecutor.
const (
	ConditionTypeSimple   = "simple"
	ConditionTypeContains = "contains"
)

// DecisionExecutor evaluates config.conditions in order and routes to the
// next_node of the first one that holds, or to config.default_next.
// Conditions of any other type always hold.
type DecisionExecutor struct{}

func (DecisionExecutor) Execute(_ context.Context, session *WorkflowSession, node *WorkflowNode) (map[string]any, error) {
	data := session.Context.CurrentData

	for _, cond := range toMapSlice(node.Config["conditions"]) {
		if !evaluateCondition(cond, data) {
			continue
		}
		return map[string]any{
			"decision":      configString(cond, "name", "true"),
			"next_node":     cond["next_node"],
			"condition_met": true,
		}, nil
	}

	var defaultNext any
	if node.Config != nil {
		defaultNext = node.Config["default_next"]
	}
	return map[string]any{
		"decision":      "default",
		"next_node":     defaultNext,
		"condition_met": false,
	}, nil
}

func evaluateCondition(cond map[string]any, data map[string]any) bool {
	switch stringValue(cond["type"]) {
	case ConditionTypeSimple:
		key := stringValue(cond["key"])
		actual, ok := data[key]
		if !ok {
			return false
		}
		return valuesEqual(actual, cond["value"])
	case ConditionTypeContains:
		text := strings.ToLower(stringValue(cond["text"]))
		return strings.Contains(strings.ToLower(stringForm(data)), text)
	default:
		return true
	}
}
