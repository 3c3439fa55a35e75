package workflow

import (
	"context"
	"fmt"
	"strings"
)

// Aggregation methods understood by AggregatorExecutor.
const (
	AggregationConsensus       = "consensus"
	AggregationWeightedAverage = "weighted-average"
)

// AggregatorExecutor combines every agent response recorded in the session,
// in the order the agents first responded.
type AggregatorExecutor struct{}

func (AggregatorExecutor) Execute(_ context.Context, session *WorkflowSession, node *WorkflowNode) (map[string]any, error) {
	method := configString(node.Config, "method", AggregationConsensus)
	outputs := session.Context.AgentOutputs

	var combined string
	switch method {
	case AggregationConsensus:
		parts := make([]string, 0, outputs.Len())
		outputs.Range(func(agentID string, resp AgentResponse) bool {
			parts = append(parts, fmt.Sprintf("Agent %s: %s", agentID, resp.Content()))
			return true
		})
		combined = strings.Join(parts, "\n\n")
	case AggregationWeightedAverage:
		parts := make([]string, 0, outputs.Len())
		outputs.Range(func(_ string, resp AgentResponse) bool {
			parts = append(parts, fmt.Sprintf("[Confidence: %s] %s", confidenceText(resp), resp.Content()))
			return true
		})
		combined = strings.Join(parts, "\n\n")
	default:
		combined = stringForm(outputs)
	}

	return map[string]any{
		"aggregation_method": method,
		"combined_response":  combined,
		"agent_count":        outputs.Len(),
	}, nil
}

func confidenceText(resp AgentResponse) string {
	c, ok := resp.Confidence()
	if !ok {
		return "1.0"
	}
	// 0 视同未给出
	if f, isNum := toFloat(c); isNum && f == 0 {
		return "1.0"
	}
	return stringValue(c)
}
