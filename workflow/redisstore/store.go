// Package redisstore backs the workflow engine's session and workflow
// registries with Redis.
//
// Sessions round-trip through JSON, so numbers in context data come back as
// float64 and Get returns a decoded copy rather than the live session. The
// engine persists progress after every step, which keeps status queries from
// other processes current.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentorch/internal/cache"
	"github.com/BaSui01/agentorch/types"
	"github.com/BaSui01/agentorch/workflow"
)

const (
	sessionKeyPrefix  = "session:"
	workflowKeyPrefix = "workflow:"
	terminalIndex     = "sessions:terminal"
	workflowIndex     = "workflows"
)

// ====== Sessions ======

// SessionStore implements workflow.SessionStore on a cache.Manager.
type SessionStore struct {
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionStore creates a session store. Stored sessions expire after ttl
// regardless of reaping; a non-positive ttl uses the manager default.
func NewSessionStore(manager *cache.Manager, ttl time.Duration, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		cache:  manager,
		ttl:    max(ttl, 0),
		logger: logger.With(zap.String("component", "redis_session_store")),
	}
}

func (s *SessionStore) Save(ctx context.Context, session *workflow.WorkflowSession) error {
	if session == nil {
		return types.NewError(types.ErrInvalidRequest, "session cannot be nil")
	}
	if err := s.cache.SetJSON(ctx, sessionKeyPrefix+session.SessionID, session, s.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", session.SessionID, err)
	}

	report := session.StatusReport()
	if report.Status.IsTerminal() {
		return s.cache.IndexAdd(ctx, terminalIndex, session.SessionID, float64(report.UpdatedAt.UnixMilli()))
	}
	return s.cache.IndexRemove(ctx, terminalIndex, session.SessionID)
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*workflow.WorkflowSession, error) {
	var session workflow.WorkflowSession
	if err := s.cache.GetJSON(ctx, sessionKeyPrefix+sessionID, &session); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, types.Errorf(types.ErrSessionNotFound, "session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	normalize(&session)
	return &session, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	n, err := s.cache.Delete(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		return err
	}
	if n == 0 {
		return types.Errorf(types.ErrSessionNotFound, "session not found: %s", sessionID)
	}
	return s.cache.IndexRemove(ctx, terminalIndex, sessionID)
}

func (s *SessionStore) Reap(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.cache.IndexRangeBelow(ctx, terminalIndex, float64(cutoff.UnixMilli()))
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKeyPrefix + id
	}
	n, err := s.cache.Delete(ctx, keys...)
	if err != nil {
		return 0, err
	}
	if err := s.cache.IndexRemove(ctx, terminalIndex, ids...); err != nil {
		return int(n), err
	}
	s.logger.Debug("reaped sessions", zap.Int64("deleted", n), zap.Int("indexed", len(ids)))
	return int(n), nil
}

// normalize restores the invariants a decoded session may lack.
func normalize(session *workflow.WorkflowSession) {
	if session.Context == nil {
		session.Context = workflow.NewWorkflowContext(session.SessionID, "", session.CreatedAt)
	}
	wctx := session.Context
	if wctx.CurrentData == nil {
		wctx.CurrentData = make(map[string]any)
	}
	if wctx.AgentOutputs == nil {
		wctx.AgentOutputs = workflow.NewAgentOutputs()
	}
	if wctx.Metadata == nil {
		wctx.Metadata = make(map[string]any)
	}
	if session.ExecutionPath == nil {
		session.ExecutionPath = make([]workflow.ExecutionStep, 0)
	}
}

// ====== Workflows ======

// WorkflowStore implements workflow.WorkflowStore on a cache.Manager.
// Definitions never expire.
type WorkflowStore struct {
	cache *cache.Manager
}

// NewWorkflowStore creates a workflow store.
func NewWorkflowStore(manager *cache.Manager) *WorkflowStore {
	return &WorkflowStore{cache: manager}
}

func (s *WorkflowStore) Save(ctx context.Context, def *workflow.WorkflowDefinition) error {
	if def == nil {
		return types.NewError(types.ErrInvalidWorkflow, "workflow definition cannot be nil")
	}
	if err := s.cache.SetJSON(ctx, workflowKeyPrefix+def.ID, def, cache.Persistent); err != nil {
		return fmt.Errorf("save workflow %s: %w", def.ID, err)
	}
	return s.cache.IndexAdd(ctx, workflowIndex, def.ID, 0)
}

func (s *WorkflowStore) Get(ctx context.Context, workflowID string) (*workflow.WorkflowDefinition, error) {
	var def workflow.WorkflowDefinition
	if err := s.cache.GetJSON(ctx, workflowKeyPrefix+workflowID, &def); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, types.Errorf(types.ErrWorkflowNotFound, "workflow not found: %s", workflowID)
		}
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	return &def, nil
}

// List returns definitions sorted by ID. Index entries whose definition has
// disappeared are skipped.
func (s *WorkflowStore) List(ctx context.Context) ([]*workflow.WorkflowDefinition, error) {
	ids, err := s.cache.IndexMembers(ctx, workflowIndex)
	if err != nil {
		return nil, err
	}
	defs := make([]*workflow.WorkflowDefinition, 0, len(ids))
	for _, id := range ids {
		def, err := s.Get(ctx, id)
		if types.IsErrorCode(err, types.ErrWorkflowNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s *WorkflowStore) Delete(ctx context.Context, workflowID string) error {
	n, err := s.cache.Delete(ctx, workflowKeyPrefix+workflowID)
	if err != nil {
		return err
	}
	if n == 0 {
		return types.Errorf(types.ErrWorkflowNotFound, "workflow not found: %s", workflowID)
	}
	return s.cache.IndexRemove(ctx, workflowIndex, workflowID)
}

var (
	_ workflow.SessionStore  = (*SessionStore)(nil)
	_ workflow.WorkflowStore = (*WorkflowStore)(nil)
)
