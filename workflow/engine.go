package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentorch/types"
)

// SessionNotFoundMessage is the error text of a status query for an unknown session.
const SessionNotFoundMessage = "Session not found"

// DefaultSessionTTL is how long terminal sessions are kept before reaping.
const DefaultSessionTTL = time.Hour

// ====== Options ======

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSessionStore replaces the in-memory session store.
func WithSessionStore(store SessionStore) EngineOption {
	return func(e *Engine) { e.sessions = store }
}

// WithWorkflowStore replaces the in-memory workflow store.
func WithWorkflowStore(store WorkflowStore) EngineOption {
	return func(e *Engine) { e.workflows = store }
}

// WithCommunicator registers the agent communicator at construction.
func WithCommunicator(c AgentCommunicator) EngineOption {
	return func(e *Engine) { e.communicator = c }
}

// WithStrictValidation makes RegisterWorkflow reject structurally invalid definitions.
func WithStrictValidation(strict bool) EngineOption {
	return func(e *Engine) { e.strict = strict }
}

// WithSessionTTL sets the retention of terminal sessions.
func WithSessionTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		if ttl > 0 {
			e.sessionTTL = ttl
		}
	}
}

// WithMaxConcurrentSessions bounds ExecuteSessions fan-out.
func WithMaxConcurrentSessions(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithNow sets the clock used for timestamps, monitor metrics and reaping.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRunnerOptions forwards options to the session runner.
func WithRunnerOptions(opts ...RunnerOption) EngineOption {
	return func(e *Engine) { e.runnerOpts = append(e.runnerOpts, opts...) }
}

// ====== Engine ======

// Engine is the facade over workflow registration and the session lifecycle.
type Engine struct {
	workflows WorkflowStore
	sessions  SessionStore
	executors *ExecutorRegistry
	runner    *Runner

	commMu       sync.RWMutex
	communicator AgentCommunicator

	locks *keyedMutex

	strict        bool
	sessionTTL    time.Duration
	maxConcurrent int
	runnerOpts    []RunnerOption
	now           func() time.Time
	logger        *zap.Logger
}

// NewEngine creates an engine backed by in-memory stores unless overridden.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		workflows:     NewMemoryWorkflowStore(),
		sessions:      NewMemorySessionStore(),
		locks:         newKeyedMutex(),
		sessionTTL:    DefaultSessionTTL,
		maxConcurrent: 4,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	base := e.logger
	e.logger = base.With(zap.String("component", "workflow_engine"))

	e.executors = NewDefaultExecutorRegistry(e.Communicator, e.now)
	runnerOpts := append([]RunnerOption{WithClock(e.now), WithStepHook(e.persist)}, e.runnerOpts...)
	e.runner = NewRunner(e.executors, base, runnerOpts...)
	return e
}

// SetAgentCommunicator registers or replaces the agent communicator.
func (e *Engine) SetAgentCommunicator(c AgentCommunicator) {
	e.commMu.Lock()
	e.communicator = c
	e.commMu.Unlock()
}

// Communicator returns the registered agent communicator, or nil.
func (e *Engine) Communicator() AgentCommunicator {
	e.commMu.RLock()
	defer e.commMu.RUnlock()
	return e.communicator
}

// RegisterExecutor installs a custom executor for a node type.
func (e *Engine) RegisterExecutor(nodeType NodeType, executor NodeExecutor) {
	e.executors.Register(nodeType, executor)
}

// RegisterWorkflow stores a definition, replacing any with the same ID.
func (e *Engine) RegisterWorkflow(ctx context.Context, def *WorkflowDefinition) error {
	if def == nil {
		return types.NewError(types.ErrInvalidWorkflow, "workflow definition cannot be nil")
	}
	if e.strict {
		if err := validateDefinition(def, e.hasExecutor); err != nil {
			return err
		}
	}
	if err := e.workflows.Save(ctx, def); err != nil {
		return err
	}
	e.logger.Info("workflow registered",
		zap.String("workflow_id", def.ID),
		zap.Int("nodes", len(def.Nodes)),
	)
	return nil
}

// GetWorkflow returns a registered definition.
func (e *Engine) GetWorkflow(ctx context.Context, workflowID string) (*WorkflowDefinition, error) {
	return e.workflows.Get(ctx, workflowID)
}

// ListWorkflows returns all registered definitions.
func (e *Engine) ListWorkflows(ctx context.Context) ([]*WorkflowDefinition, error) {
	return e.workflows.List(ctx)
}

// CreateSession creates a pending session for a registered workflow.
func (e *Engine) CreateSession(ctx context.Context, workflowID, userInput string) (string, error) {
	if _, err := e.workflows.Get(ctx, workflowID); err != nil {
		return "", err
	}
	session := NewWorkflowSession(uuid.NewString(), workflowID, userInput, e.now())
	if err := e.sessions.Save(ctx, session); err != nil {
		return "", err
	}
	e.logger.Debug("session created",
		zap.String("session_id", session.SessionID),
		zap.String("workflow_id", workflowID),
	)
	return session.SessionID, nil
}

// ExecuteWorkflow runs a pending session to completion.
//
// The returned error is non-nil only when the session or its workflow cannot
// be found, or when the session is no longer pending. Node failures are
// reported through ExecutionResult.Status.
func (e *Engine) ExecuteWorkflow(ctx context.Context, sessionID string) (*ExecutionResult, error) {
	unlock := e.locks.Lock(sessionID)
	defer unlock()

	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	def, err := e.workflows.Get(ctx, session.WorkflowID)
	if err != nil {
		return nil, err
	}
	return e.runner.Run(ctx, def, session)
}

// ExecuteSessions runs several sessions concurrently, at most
// WithMaxConcurrentSessions at a time. Results are returned in input order.
// The first precondition error cancels the context shared by the others.
func (e *Engine) ExecuteSessions(ctx context.Context, sessionIDs []string) ([]*ExecutionResult, error) {
	results := make([]*ExecutionResult, len(sessionIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)

	for i, id := range sessionIDs {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.ExecuteWorkflow(gctx, id)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// GetSessionStatus reports a session's progress. An unknown session yields a
// report carrying only SessionID and Error.
func (e *Engine) GetSessionStatus(ctx context.Context, sessionID string) *SessionStatusReport {
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return &SessionStatusReport{SessionID: sessionID, Error: SessionNotFoundMessage}
	}
	return session.StatusReport()
}

// GetSession returns the stored session.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*WorkflowSession, error) {
	return e.sessions.Get(ctx, sessionID)
}

// DeleteSession removes a session. A running session cannot be deleted.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.GetStatus() == SessionStatusRunning {
		return types.Errorf(types.ErrInvalidSessionState, "session %s is running", sessionID)
	}
	return e.sessions.Delete(ctx, sessionID)
}

// ReapSessions evicts terminal sessions older than the session TTL.
func (e *Engine) ReapSessions(ctx context.Context) (int, error) {
	n, err := e.sessions.Reap(ctx, e.now().Add(-e.sessionTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("reaped expired sessions", zap.Int("count", n))
	}
	return n, nil
}

// StartReaper reaps sessions every interval until ctx is done.
func (e *Engine) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.ReapSessions(ctx); err != nil {
					e.logger.Warn("session reap failed", zap.Error(err))
				}
			}
		}
	}()
}

// MaxIterations returns the runner's iteration cap.
func (e *Engine) MaxIterations() int {
	return e.runner.MaxIterations()
}

func (e *Engine) hasExecutor(t NodeType) bool {
	_, ok := e.executors.Get(t)
	return ok
}

// persist writes session progress back to the store. Failures are logged:
// the in-flight session remains authoritative.
func (e *Engine) persist(ctx context.Context, session *WorkflowSession) {
	if err := e.sessions.Save(ctx, session); err != nil {
		e.logger.Warn("failed to persist session",
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
	}
}

// ====== Per-session locking ======

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
