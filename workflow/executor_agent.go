package workflow

import (
	"context"

	"github.com/BaSui01/agentorch/types"
)

// AgentExecutor sends the session state to the agent named in config.agent_id
// and records the agent's response.
type AgentExecutor struct {
	communicator func() AgentCommunicator
}

// NewAgentExecutor creates an agent executor bound to a communicator source.
func NewAgentExecutor(communicator func() AgentCommunicator) *AgentExecutor {
	return &AgentExecutor{communicator: communicator}
}

func (e *AgentExecutor) Execute(ctx context.Context, session *WorkflowSession, node *WorkflowNode) (map[string]any, error) {
	agentID := configString(node.Config, "agent_id", "")
	if agentID == "" {
		return nil, types.NewError(types.ErrNodeExecution, "no agent_id specified")
	}

	var comm AgentCommunicator
	if e.communicator != nil {
		comm = e.communicator()
	}
	if comm == nil {
		return nil, types.NewError(types.ErrAgentCommunicatorUnavailable, "agent communicator not registered")
	}

	wctx := session.Context
	task := AgentTask{
		UserInput:       wctx.UserInput,
		Context:         wctx.Snapshot(),
		PreviousOutputs: wctx.AgentOutputs.Clone(),
		NodeConfig:      cloneMap(node.Config),
	}

	resp, err := comm.SendTaskToAgent(ctx, agentID, task)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = AgentResponse{}
	}

	wctx.AgentOutputs.Set(agentID, resp)

	return map[string]any{
		"agent_id":       agentID,
		"agent_response": resp,
		"node_output":    resp.Content(),
	}, nil
}
