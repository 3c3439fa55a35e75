package workflow

import (
	"context"
	"strings"
)

// Guardrail actions. The engine records the verdict; callers enforce it.
const (
	GuardrailActionContinue = "continue"
	GuardrailActionBlock    = "block"
)

// GuardrailKeywords is the fixed set of unsafe keywords, in report order.
var GuardrailKeywords = []string{"hack", "exploit", "malicious", "harmful"}

// GuardrailExecutor scans the context text for unsafe keywords.
type GuardrailExecutor struct{}

func (GuardrailExecutor) Execute(_ context.Context, session *WorkflowSession, node *WorkflowNode) (map[string]any, error) {
	safetyLevel := configString(node.Config, "safety_level", "medium")
	text := strings.ToLower(session.Context.DataString())

	violations := make([]string, 0)
	for _, kw := range GuardrailKeywords {
		if strings.Contains(text, kw) {
			violations = append(violations, kw)
		}
	}

	isSafe := len(violations) == 0
	action := GuardrailActionContinue
	if !isSafe {
		action = GuardrailActionBlock
	}

	return map[string]any{
		"safety_check": "completed",
		"is_safe":      isSafe,
		"safety_level": safetyLevel,
		"violations":   violations,
		"action":       action,
	}, nil
}
