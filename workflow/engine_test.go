package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentorch/types"
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{WithLogger(zap.NewNop())}, opts...)
	return NewEngine(opts...)
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

func TestEngine_CreateAndExecute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newTestEngine(t, WithCommunicator(newStubCommunicator(map[string]AgentResponse{
		"agentX": {"content": "hello"},
	})))
	require.NoError(t, engine.RegisterWorkflow(ctx, singleAgentWorkflow()))

	id, err := engine.CreateSession(ctx, "single", "hi")
	require.NoError(t, err)

	status := engine.GetSessionStatus(ctx, id)
	assert.Equal(t, SessionStatusPending, status.Status)
	assert.Equal(t, 0, status.StepsCompleted)

	res, err := engine.ExecuteWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, res.SessionID)
	assert.Equal(t, SessionStatusCompleted, res.Status)
	assert.Equal(t, "hello", res.Result["node_output"])

	status = engine.GetSessionStatus(ctx, id)
	assert.Equal(t, SessionStatusCompleted, status.Status)
	assert.Equal(t, 1, status.StepsCompleted)
	assert.Equal(t, "A", status.CurrentNode)
	assert.Empty(t, status.Error)
}

func TestEngine_GetSessionStatus_NotFound(t *testing.T) {
	t.Parallel()
	report := newTestEngine(t).GetSessionStatus(context.Background(), "missing")
	assert.Equal(t, "missing", report.SessionID)
	assert.Equal(t, SessionNotFoundMessage, report.Error)
	assert.Empty(t, report.Status)
}

func TestEngine_PreconditionErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newTestEngine(t)

	_, err := engine.CreateSession(ctx, "nope", "")
	assert.True(t, types.IsErrorCode(err, types.ErrWorkflowNotFound))

	_, err = engine.ExecuteWorkflow(ctx, "nope")
	assert.True(t, types.IsErrorCode(err, types.ErrSessionNotFound))

	require.NoError(t, engine.RegisterWorkflow(ctx, singleAgentWorkflow()))
	id, err := engine.CreateSession(ctx, "single", "")
	require.NoError(t, err)

	// Node failures are data, not errors.
	res, err := engine.ExecuteWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusError, res.Status)
	assert.Contains(t, res.Error, string(types.ErrAgentCommunicatorUnavailable))

	_, err = engine.ExecuteWorkflow(ctx, id)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidSessionState))
}

func TestEngine_LateCommunicatorRegistration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newTestEngine(t)
	require.NoError(t, engine.RegisterWorkflow(ctx, singleAgentWorkflow()))
	assert.Nil(t, engine.Communicator())

	engine.SetAgentCommunicator(newStubCommunicator(nil))
	id, err := engine.CreateSession(ctx, "single", "")
	require.NoError(t, err)

	res, err := engine.ExecuteWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusCompleted, res.Status)
	assert.Equal(t, "ok from agentX", res.Result["node_output"])
}

func TestEngine_SameSessionExecutesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	comm := CommunicatorFunc(func(context.Context, string, AgentTask) (AgentResponse, error) {
		calls.Add(1)
		<-release
		return AgentResponse{"content": "done"}, nil
	})
	engine := newTestEngine(t, WithCommunicator(comm))
	require.NoError(t, engine.RegisterWorkflow(ctx, singleAgentWorkflow()))
	id, err := engine.CreateSession(ctx, "single", "")
	require.NoError(t, err)

	const callers = 5
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.ExecuteWorkflow(ctx, id); err != nil {
				if types.IsErrorCode(err, types.ErrInvalidSessionState) {
					rejected.Add(1)
				}
				return
			}
			succeeded.Add(1)
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, SessionStatusRunning, engine.GetSessionStatus(ctx, id).Status)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())
}

func TestEngine_ExecuteSessionsConcurrently(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newTestEngine(t, WithCommunicator(newStubCommunicator(nil)), WithMaxConcurrentSessions(2))
	require.NoError(t, engine.RegisterWorkflow(ctx, singleAgentWorkflow()))

	ids := make([]string, 6)
	for i := range ids {
		id, err := engine.CreateSession(ctx, "single", fmt.Sprintf("input-%d", i))
		require.NoError(t, err)
		ids[i] = id
	}

	results, err := engine.ExecuteSessions(ctx, ids)
	require.NoError(t, err)
	require.Len(t, results, len(ids))
	for i, res := range results {
		assert.Equal(t, ids[i], res.SessionID)
		assert.Equal(t, SessionStatusCompleted, res.Status)
	}
}

func TestEngine_ExecuteSessionsStopsOnPreconditionError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newTestEngine(t, WithCommunicator(newStubCommunicator(nil)))
	require.NoError(t, engine.RegisterWorkflow(ctx, singleAgentWorkflow()))

	_, err := engine.ExecuteSessions(ctx, []string{"ghost"})
	assert.True(t, types.IsErrorCode(err, types.ErrSessionNotFound))
}

// ---------------------------------------------------------------------------
// Registry & maintenance
// ---------------------------------------------------------------------------

func TestEngine_WorkflowRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newTestEngine(t)

	def := singleAgentWorkflow()
	require.NoError(t, engine.RegisterWorkflow(ctx, def))
	require.NoError(t, engine.RegisterWorkflow(ctx, &WorkflowDefinition{ID: "another", EntryPoint: "x"}))
	assert.Error(t, engine.RegisterWorkflow(ctx, nil))

	def.Nodes[0].Config["agent_id"] = "mutated"
	stored, err := engine.GetWorkflow(ctx, "single")
	require.NoError(t, err)
	assert.Equal(t, "agentX", stored.Nodes[0].Config["agent_id"])

	list, err := engine.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "another", list[0].ID)
	assert.Equal(t, "single", list[1].ID)
}

func TestEngine_StrictValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newTestEngine(t, WithStrictValidation(true))

	err := engine.RegisterWorkflow(ctx, &WorkflowDefinition{
		ID:         "bad",
		Nodes:      []WorkflowNode{{ID: "a", Type: "custom"}},
		EntryPoint: "a",
	})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidWorkflow))

	engine.RegisterExecutor("custom", NodeExecutorFunc(func(context.Context, *WorkflowSession, *WorkflowNode) (map[string]any, error) {
		return map[string]any{"custom": true}, nil
	}))
	require.NoError(t, engine.RegisterWorkflow(ctx, &WorkflowDefinition{
		ID:         "bad",
		Nodes:      []WorkflowNode{{ID: "a", Type: "custom"}},
		EntryPoint: "a",
	}))

	id, err := engine.CreateSession(ctx, "bad", "")
	require.NoError(t, err)
	res, err := engine.ExecuteWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, true, res.Result["custom"])
}

func TestEngine_DeleteAndReapSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := testEpoch
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	engine := newTestEngine(t, WithNow(clock), WithSessionTTL(time.Hour))
	require.NoError(t, engine.RegisterWorkflow(ctx, &WorkflowDefinition{
		ID: "h", Nodes: []WorkflowNode{{ID: "a", Type: NodeTypeHuman}}, EntryPoint: "a",
	}))

	done, err := engine.CreateSession(ctx, "h", "")
	require.NoError(t, err)
	_, err = engine.ExecuteWorkflow(ctx, done)
	require.NoError(t, err)

	pending, err := engine.CreateSession(ctx, "h", "")
	require.NoError(t, err)

	advance(2 * time.Hour)
	n, err := engine.ReapSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, SessionNotFoundMessage, engine.GetSessionStatus(ctx, done).Error)

	_, err = engine.GetSession(ctx, pending)
	require.NoError(t, err)
	require.NoError(t, engine.DeleteSession(ctx, pending))
	assert.True(t, types.IsErrorCode(engine.DeleteSession(ctx, pending), types.ErrSessionNotFound))
}

func TestEngine_StartReaper(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemorySessionStore()
	engine := newTestEngine(t, WithSessionStore(store), WithSessionTTL(time.Millisecond))
	require.NoError(t, engine.RegisterWorkflow(ctx, &WorkflowDefinition{
		ID: "h", Nodes: []WorkflowNode{{ID: "a", Type: NodeTypeHuman}}, EntryPoint: "a",
	}))
	id, err := engine.CreateSession(ctx, "h", "")
	require.NoError(t, err)
	_, err = engine.ExecuteWorkflow(ctx, id)
	require.NoError(t, err)

	engine.StartReaper(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEngine_MaxIterationsFromRunnerOptions(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(t, WithRunnerOptions(WithMaxIterations(7)))
	assert.Equal(t, 7, engine.MaxIterations())
	assert.Equal(t, DefaultMaxIterations, newTestEngine(t).MaxIterations())
}
