package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentorch/types"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// stubCommunicator answers every agent with a canned response and records tasks.
type stubCommunicator struct {
	mu        sync.Mutex
	responses map[string]AgentResponse
	err       error
	calls     []string
	tasks     []AgentTask
}

func newStubCommunicator(responses map[string]AgentResponse) *stubCommunicator {
	return &stubCommunicator{responses: responses}
}

func (s *stubCommunicator) SendTaskToAgent(_ context.Context, agentID string, task AgentTask) (AgentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, agentID)
	s.tasks = append(s.tasks, task)
	if s.err != nil {
		return nil, s.err
	}
	if resp, ok := s.responses[agentID]; ok {
		return resp, nil
	}
	return AgentResponse{"content": "ok from " + agentID}, nil
}

func newTestSession(userInput string) *WorkflowSession {
	return NewWorkflowSession("session-1", "wf-1", userInput, testEpoch)
}

func node(id string, typ NodeType, cfg map[string]any) *WorkflowNode {
	return &WorkflowNode{ID: id, Type: typ, Config: cfg}
}

// ---------------------------------------------------------------------------
// Agent
// ---------------------------------------------------------------------------

func TestAgentExecutor_StoresResponse(t *testing.T) {
	t.Parallel()
	comm := newStubCommunicator(map[string]AgentResponse{"agentX": {"content": "hello", "extra": 1}})
	exec := NewAgentExecutor(func() AgentCommunicator { return comm })
	session := newTestSession("question")
	session.Context.Merge(map[string]any{"k": "v"}, testEpoch)

	out, err := exec.Execute(context.Background(), session, node("A", NodeTypeAgent, map[string]any{"agent_id": "agentX"}))
	require.NoError(t, err)

	assert.Equal(t, "agentX", out["agent_id"])
	assert.Equal(t, "hello", out["node_output"])
	assert.Equal(t, AgentResponse{"content": "hello", "extra": 1}, out["agent_response"])

	stored, ok := session.Context.AgentOutputs.Get("agentX")
	require.True(t, ok)
	assert.Equal(t, "hello", stored.Content())

	require.Len(t, comm.tasks, 1)
	task := comm.tasks[0]
	assert.Equal(t, "question", task.UserInput)
	assert.Equal(t, map[string]any{"k": "v"}, task.Context)
	assert.Equal(t, "agentX", task.NodeConfig["agent_id"])
}

func TestAgentExecutor_MissingAgentID(t *testing.T) {
	t.Parallel()
	comm := newStubCommunicator(nil)
	exec := NewAgentExecutor(func() AgentCommunicator { return comm })

	_, err := exec.Execute(context.Background(), newTestSession(""), node("A", NodeTypeAgent, nil))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrNodeExecution))
	assert.Contains(t, err.Error(), "no agent_id specified")
	assert.Empty(t, comm.calls)
}

func TestAgentExecutor_NoCommunicator(t *testing.T) {
	t.Parallel()
	exec := NewAgentExecutor(func() AgentCommunicator { return nil })

	_, err := exec.Execute(context.Background(), newTestSession(""), node("A", NodeTypeAgent, map[string]any{"agent_id": "x"}))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrAgentCommunicatorUnavailable))
}

func TestAgentExecutor_PropagatesAgentError(t *testing.T) {
	t.Parallel()
	comm := newStubCommunicator(nil)
	comm.err = errors.New("agent down")
	exec := NewAgentExecutor(func() AgentCommunicator { return comm })
	session := newTestSession("")

	_, err := exec.Execute(context.Background(), session, node("A", NodeTypeAgent, map[string]any{"agent_id": "x"}))
	require.Error(t, err)
	assert.Equal(t, 0, session.Context.AgentOutputs.Len())
}

func TestAgentExecutor_NilResponse(t *testing.T) {
	t.Parallel()
	comm := CommunicatorFunc(func(context.Context, string, AgentTask) (AgentResponse, error) {
		return nil, nil
	})
	exec := NewAgentExecutor(func() AgentCommunicator { return comm })

	out, err := exec.Execute(context.Background(), newTestSession(""), node("A", NodeTypeAgent, map[string]any{"agent_id": "x"}))
	require.NoError(t, err)
	assert.Equal(t, "", out["node_output"])
}

// ---------------------------------------------------------------------------
// Decision
// ---------------------------------------------------------------------------

func TestDecisionExecutor_FirstMatchWins(t *testing.T) {
	t.Parallel()
	session := newTestSession("")
	session.Context.Merge(map[string]any{"a": 1}, testEpoch)
	cfg := map[string]any{
		"conditions": []any{
			map[string]any{"type": "simple", "key": "a", "value": 1, "next_node": "X"},
			map[string]any{"type": "simple", "key": "a", "value": 1, "next_node": "Y"},
		},
	}

	out, err := DecisionExecutor{}.Execute(context.Background(), session, node("D", NodeTypeDecision, cfg))
	require.NoError(t, err)
	assert.Equal(t, "X", out["next_node"])
	assert.Equal(t, true, out["condition_met"])
	assert.Equal(t, "true", out["decision"])
}

func TestDecisionExecutor_Default(t *testing.T) {
	t.Parallel()
	session := newTestSession("")
	session.Context.Merge(map[string]any{"a": 2}, testEpoch)
	cfg := map[string]any{
		"conditions": []map[string]any{
			{"type": "simple", "key": "a", "value": 1, "next_node": "X"},
			{"type": "simple", "key": "missing", "value": nil, "next_node": "Y"},
		},
		"default_next": "Z",
	}

	out, err := DecisionExecutor{}.Execute(context.Background(), session, node("D", NodeTypeDecision, cfg))
	require.NoError(t, err)
	assert.Equal(t, "Z", out["next_node"])
	assert.Equal(t, false, out["condition_met"])
	assert.Equal(t, "default", out["decision"])
}

func TestDecisionExecutor_NoDefaultEndsWorkflow(t *testing.T) {
	t.Parallel()
	out, err := DecisionExecutor{}.Execute(context.Background(), newTestSession(""), node("D", NodeTypeDecision, nil))
	require.NoError(t, err)
	assert.Nil(t, out["next_node"])
}

func TestDecisionExecutor_ContainsIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	session := newTestSession("")
	session.Context.Merge(map[string]any{"msg": "Please ESCALATE this"}, testEpoch)
	cfg := map[string]any{
		"conditions": []any{
			map[string]any{"type": "contains", "text": "escalate", "name": "escalation", "next_node": "human"},
		},
	}

	out, err := DecisionExecutor{}.Execute(context.Background(), session, node("D", NodeTypeDecision, cfg))
	require.NoError(t, err)
	assert.Equal(t, "human", out["next_node"])
	assert.Equal(t, "escalation", out["decision"])
}

func TestDecisionExecutor_UnknownConditionTypeHolds(t *testing.T) {
	t.Parallel()
	cfg := map[string]any{
		"conditions": []any{map[string]any{"type": "regex", "next_node": "R"}},
	}
	out, err := DecisionExecutor{}.Execute(context.Background(), newTestSession(""), node("D", NodeTypeDecision, cfg))
	require.NoError(t, err)
	assert.Equal(t, "R", out["next_node"])
}

func TestEvaluateCondition_NumericEquality(t *testing.T) {
	t.Parallel()
	data := map[string]any{"score": float64(3)}
	assert.True(t, evaluateCondition(map[string]any{"type": "simple", "key": "score", "value": 3}, data))
	assert.False(t, evaluateCondition(map[string]any{"type": "simple", "key": "score", "value": "3"}, data))
}

// ---------------------------------------------------------------------------
// Handoff
// ---------------------------------------------------------------------------

func TestHandoffExecutor_AutomaticPicksFirstAvailable(t *testing.T) {
	t.Parallel()
	session := newTestSession("")
	session.Context.Merge(map[string]any{"current_agent": "triage", "summary": "billing issue"}, testEpoch)
	cfg := map[string]any{"available_agents": []any{"billing", "support"}}

	out, err := HandoffExecutor{}.Execute(context.Background(), session, node("H", NodeTypeHandoff, cfg))
	require.NoError(t, err)

	assert.Equal(t, true, out["handoff_executed"])
	assert.Equal(t, "billing", out["target_agent"])
	assert.Equal(t, "billing", out["current_agent"])

	hc := out["handoff_context"].(map[string]any)
	assert.Equal(t, "triage", hc["previous_agent"])
	assert.Equal(t, "billing issue", hc["summary"])
	assert.Equal(t, "automatic", hc["handoff_reason"])
	assert.Equal(t, "triage", hc["context_data"].(map[string]any)["current_agent"])
}

func TestHandoffExecutor_Fallbacks(t *testing.T) {
	t.Parallel()
	out, err := HandoffExecutor{}.Execute(context.Background(), newTestSession(""), node("H", NodeTypeHandoff, nil))
	require.NoError(t, err)
	assert.Equal(t, "default_agent", out["target_agent"])
	assert.Nil(t, out["handoff_context"].(map[string]any)["previous_agent"])

	cfg := map[string]any{"strategy": "manual", "available_agents": []string{"a"}, "default_agent": "expert"}
	out, err = HandoffExecutor{}.Execute(context.Background(), newTestSession(""), node("H", NodeTypeHandoff, cfg))
	require.NoError(t, err)
	assert.Equal(t, "expert", out["target_agent"])
}

// ---------------------------------------------------------------------------
// Aggregator
// ---------------------------------------------------------------------------

func TestAggregatorExecutor_Consensus(t *testing.T) {
	t.Parallel()
	session := newTestSession("")
	session.Context.AgentOutputs.Set("agent1", AgentResponse{"content": "X"})
	session.Context.AgentOutputs.Set("agent2", AgentResponse{"content": "Y"})

	out, err := AggregatorExecutor{}.Execute(context.Background(), session, node("G", NodeTypeAggregator, nil))
	require.NoError(t, err)
	assert.Equal(t, "Agent agent1: X\n\nAgent agent2: Y", out["combined_response"])
	assert.Equal(t, 2, out["agent_count"])
	assert.Equal(t, "consensus", out["aggregation_method"])
}

func TestAggregatorExecutor_WeightedAverage(t *testing.T) {
	t.Parallel()
	session := newTestSession("")
	session.Context.AgentOutputs.Set("a", AgentResponse{"content": "X", "confidence": 0.9})
	session.Context.AgentOutputs.Set("b", AgentResponse{"content": "Y"})

	out, err := AggregatorExecutor{}.Execute(context.Background(), session,
		node("G", NodeTypeAggregator, map[string]any{"method": "weighted-average"}))
	require.NoError(t, err)
	assert.Equal(t, "[Confidence: 0.9] X\n\n[Confidence: 1.0] Y", out["combined_response"])
}

func TestAggregatorExecutor_WeightedAverageZeroConfidence(t *testing.T) {
	t.Parallel()
	session := newTestSession("")
	session.Context.AgentOutputs.Set("a", AgentResponse{"content": "X", "confidence": 0.0})
	session.Context.AgentOutputs.Set("b", AgentResponse{"content": "Y", "confidence": 0})

	out, err := AggregatorExecutor{}.Execute(context.Background(), session,
		node("G", NodeTypeAggregator, map[string]any{"method": "weighted-average"}))
	require.NoError(t, err)
	assert.Equal(t, "[Confidence: 1.0] X\n\n[Confidence: 1.0] Y", out["combined_response"])
}

func TestAggregatorExecutor_OtherMethodRendersOutputs(t *testing.T) {
	t.Parallel()
	session := newTestSession("")
	session.Context.AgentOutputs.Set("a", AgentResponse{"content": "X"})

	out, err := AggregatorExecutor{}.Execute(context.Background(), session,
		node("G", NodeTypeAggregator, map[string]any{"method": "raw"}))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"content":"X"}}`, out["combined_response"])
}

func TestAggregatorExecutor_Empty(t *testing.T) {
	t.Parallel()
	out, err := AggregatorExecutor{}.Execute(context.Background(), newTestSession(""), node("G", NodeTypeAggregator, nil))
	require.NoError(t, err)
	assert.Equal(t, "", out["combined_response"])
	assert.Equal(t, 0, out["agent_count"])
}

// ---------------------------------------------------------------------------
// Human / Monitor
// ---------------------------------------------------------------------------

func TestHumanExecutor(t *testing.T) {
	t.Parallel()
	out, err := HumanExecutor{}.Execute(context.Background(), newTestSession(""), node("U", NodeTypeHuman, nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"human_input_required": true,
		"input_type":           "text",
		"prompt":               "Human input required",
		"status":               "waiting_for_input",
	}, out)
}

func TestMonitorExecutor(t *testing.T) {
	t.Parallel()
	session := newTestSession("")
	session.Context.AgentOutputs.Set("a", AgentResponse{"content": "x"})
	session.appendStep(ExecutionStep{NodeID: "n1"})
	exec := &MonitorExecutor{now: func() time.Time { return testEpoch.Add(90 * time.Second) }}

	out, err := exec.Execute(context.Background(), session, node("M", NodeTypeMonitor, nil))
	require.NoError(t, err)
	assert.Equal(t, "active", out["monitoring"])
	assert.Equal(t, "healthy", out["status"])

	metrics := out["metrics"].(map[string]any)
	assert.Equal(t, 90.0, metrics["execution_time"])
	assert.Equal(t, 1, metrics["steps_completed"])
	assert.Equal(t, 1, metrics["active_agents"])
	assert.Equal(t, len("{}"), metrics["context_size"])
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

func TestMemoryExecutor_StoreThenRetrieve(t *testing.T) {
	t.Parallel()
	session := newTestSession("")
	session.Context.Merge(map[string]any{"fact": "sky is blue"}, testEpoch)

	out, err := MemoryExecutor{}.Execute(context.Background(), session,
		node("m1", NodeTypeMemory, map[string]any{"operation": "store", "key": "facts"}))
	require.NoError(t, err)
	assert.Equal(t, "facts", out["memory_key"])
	assert.Equal(t, len(`{"fact":"sky is blue"}`), out["stored_data_size"])

	session.Context.Merge(map[string]any{"fact": "changed"}, testEpoch)

	out, err = MemoryExecutor{}.Execute(context.Background(), session,
		node("m2", NodeTypeMemory, map[string]any{"operation": "retrieve", "key": "facts"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fact": "sky is blue"}, out["retrieved_data"])
}

func TestMemoryExecutor_DefaultKeyAndMissing(t *testing.T) {
	t.Parallel()
	session := newTestSession("")

	out, err := MemoryExecutor{}.Execute(context.Background(), session, node("m1", NodeTypeMemory, nil))
	require.NoError(t, err)
	assert.Equal(t, "memory_m1", out["memory_key"])
	assert.Contains(t, session.Context.Metadata, "memory_m1")

	out, err = MemoryExecutor{}.Execute(context.Background(), session,
		node("m2", NodeTypeMemory, map[string]any{"operation": "retrieve"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, out["retrieved_data"])
}

func TestMemoryExecutor_UnsupportedOperation(t *testing.T) {
	t.Parallel()
	_, err := MemoryExecutor{}.Execute(context.Background(), newTestSession(""),
		node("m", NodeTypeMemory, map[string]any{"operation": "forget"}))
	assert.ErrorContains(t, err, "unsupported memory operation")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

// ---------------------------------------------------------------------------
// Guardrail
// ---------------------------------------------------------------------------

func TestGuardrailExecutor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		data       map[string]any
		violations []string
		action     string
	}{
		{"clean", map[string]any{"msg": "hello"}, []string{}, "continue"},
		{"single", map[string]any{"msg": "how to HACK a site"}, []string{"hack"}, "block"},
		{"ordered", map[string]any{"msg": "harmful exploit"}, []string{"exploit", "harmful"}, "block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newTestSession("")
			session.Context.Merge(tt.data, testEpoch)

			out, err := GuardrailExecutor{}.Execute(context.Background(), session, node("g", NodeTypeGuardrail, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.violations, out["violations"])
			assert.Equal(t, tt.action, out["action"])
			assert.Equal(t, len(tt.violations) == 0, out["is_safe"])
			assert.Equal(t, "medium", out["safety_level"])
			assert.Equal(t, "completed", out["safety_check"])
		})
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestDefaultExecutorRegistry_CoversKnownTypes(t *testing.T) {
	t.Parallel()
	r := NewDefaultExecutorRegistry(nil, nil)
	for _, typ := range KnownNodeTypes {
		_, ok := r.Get(typ)
		assert.True(t, ok, "missing executor for %s", typ)
	}
	_, ok := r.Get("teleport")
	assert.False(t, ok)
}
