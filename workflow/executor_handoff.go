package workflow

import "context"

// HandoffStrategyAutomatic picks the first available agent.
const HandoffStrategyAutomatic = "automatic"

const fallbackAgent = "default_agent"

// HandoffExecutor selects the next active agent and publishes it as
// current_agent for later nodes.
type HandoffExecutor struct{}

func (HandoffExecutor) Execute(_ context.Context, session *WorkflowSession, node *WorkflowNode) (map[string]any, error) {
	strategy := configString(node.Config, "strategy", HandoffStrategyAutomatic)
	available := toStringSlice(node.Config["available_agents"])

	var target string
	if strategy == HandoffStrategyAutomatic && len(available) > 0 {
		target = available[0]
	} else {
		target = configString(node.Config, "default_agent", fallbackAgent)
	}

	data := session.Context.CurrentData
	handoffContext := map[string]any{
		"summary":        stringValue(data["summary"]),
		"previous_agent": data["current_agent"],
		"target_agent":   target,
		"handoff_reason": strategy,
		"context_data":   session.Context.Snapshot(),
	}

	return map[string]any{
		"handoff_executed": true,
		"target_agent":     target,
		"handoff_context":  handoffContext,
		"current_agent":    target,
	}, nil
}
