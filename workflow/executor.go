package workflow

import (
	"context"
	"sync"
	"time"
)

// NodeExecutor runs one node type against a session.
// It returns the node output, which the runner merges into the context,
// or an error, which the runner records and turns into a failed session.
type NodeExecutor interface {
	Execute(ctx context.Context, session *WorkflowSession, node *WorkflowNode) (map[string]any, error)
}

// NodeExecutorFunc adapts a function to NodeExecutor.
type NodeExecutorFunc func(ctx context.Context, session *WorkflowSession, node *WorkflowNode) (map[string]any, error)

// Execute calls f.
func (f NodeExecutorFunc) Execute(ctx context.Context, session *WorkflowSession, node *WorkflowNode) (map[string]any, error) {
	return f(ctx, session, node)
}

// AgentTask is the payload sent to an agent.
type AgentTask struct {
	UserInput       string         `json:"user_input"`
	Context         map[string]any `json:"context"`
	PreviousOutputs *AgentOutputs  `json:"previous_outputs"`
	NodeConfig      map[string]any `json:"node_config"`
}

// AgentCommunicator dispatches work to an agent and returns its response.
type AgentCommunicator interface {
	SendTaskToAgent(ctx context.Context, agentID string, task AgentTask) (AgentResponse, error)
}

// CommunicatorFunc adapts a function to AgentCommunicator.
type CommunicatorFunc func(ctx context.Context, agentID string, task AgentTask) (AgentResponse, error)

// SendTaskToAgent calls f.
func (f CommunicatorFunc) SendTaskToAgent(ctx context.Context, agentID string, task AgentTask) (AgentResponse, error) {
	return f(ctx, agentID, task)
}

// ExecutorRegistry maps node types to their executors.
type ExecutorRegistry struct {
	executors map[NodeType]NodeExecutor
	mu        sync.RWMutex
}

// NewExecutorRegistry creates an empty registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{executors: make(map[NodeType]NodeExecutor)}
}

// NewDefaultExecutorRegistry registers the built-in executor for every node type.
// communicator is consulted on each Agent node so it can be registered late.
func NewDefaultExecutorRegistry(communicator func() AgentCommunicator, now func() time.Time) *ExecutorRegistry {
	if now == nil {
		now = time.Now
	}
	r := NewExecutorRegistry()
	r.Register(NodeTypeAgent, &AgentExecutor{communicator: communicator})
	r.Register(NodeTypeDecision, DecisionExecutor{})
	r.Register(NodeTypeHandoff, HandoffExecutor{})
	r.Register(NodeTypeAggregator, AggregatorExecutor{})
	r.Register(NodeTypeHuman, HumanExecutor{})
	r.Register(NodeTypeMemory, MemoryExecutor{})
	r.Register(NodeTypeGuardrail, GuardrailExecutor{})
	r.Register(NodeTypeMonitor, &MonitorExecutor{now: now})
	return r
}

// Register installs or replaces the executor for a node type.
func (r *ExecutorRegistry) Register(nodeType NodeType, executor NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[nodeType] = executor
}

// Get returns the executor for a node type.
func (r *ExecutorRegistry) Get(nodeType NodeType) (NodeExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[nodeType]
	return e, ok
}
