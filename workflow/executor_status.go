package workflow

import (
	"context"
	"time"
)

// HumanExecutor marks a point where human input is expected.
// It does not pause the session; routing continues immediately.
type HumanExecutor struct{}

func (HumanExecutor) Execute(_ context.Context, _ *WorkflowSession, node *WorkflowNode) (map[string]any, error) {
	return map[string]any{
		"human_input_required": true,
		"input_type":           configString(node.Config, "input_type", "text"),
		"prompt":               configString(node.Config, "prompt", "Human input required"),
		"status":               "waiting_for_input",
	}, nil
}

// MonitorExecutor reports derived session metrics. Side-effect free.
type MonitorExecutor struct {
	now func() time.Time
}

func (e *MonitorExecutor) Execute(_ context.Context, session *WorkflowSession, _ *WorkflowNode) (map[string]any, error) {
	now := time.Now
	if e != nil && e.now != nil {
		now = e.now
	}
	wctx := session.Context

	return map[string]any{
		"monitoring": "active",
		"status":     "healthy",
		"metrics": map[string]any{
			"execution_time":  now().Sub(session.CreatedAt).Seconds(),
			"steps_completed": len(session.ExecutionPath),
			"active_agents":   wctx.AgentOutputs.Len(),
			"context_size":    len(wctx.DataString()),
		},
	}, nil
}
