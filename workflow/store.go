package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/agentorch/types"
)

// SessionStore persists sessions by ID.
//
// The in-memory implementation hands back the same pointer that was saved, so
// an executing session is observable while it runs. Remote implementations
// return decoded copies and are updated through Save.
type SessionStore interface {
	Save(ctx context.Context, session *WorkflowSession) error
	Get(ctx context.Context, sessionID string) (*WorkflowSession, error)
	Delete(ctx context.Context, sessionID string) error
	// Reap removes terminal sessions last updated before cutoff and returns
	// how many were removed.
	Reap(ctx context.Context, cutoff time.Time) (int, error)
}

// WorkflowStore persists workflow definitions by ID.
type WorkflowStore interface {
	Save(ctx context.Context, def *WorkflowDefinition) error
	Get(ctx context.Context, workflowID string) (*WorkflowDefinition, error)
	List(ctx context.Context) ([]*WorkflowDefinition, error)
	Delete(ctx context.Context, workflowID string) error
}

// ====== In-memory sessions ======

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*WorkflowSession
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*WorkflowSession)}
}

func (s *MemorySessionStore) Save(_ context.Context, session *WorkflowSession) error {
	if session == nil {
		return types.NewError(types.ErrInvalidRequest, "session cannot be nil")
	}
	s.mu.Lock()
	s.sessions[session.SessionID] = session
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*WorkflowSession, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrSessionNotFound, "session not found: %s", sessionID)
	}
	return session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return types.Errorf(types.ErrSessionNotFound, "session not found: %s", sessionID)
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemorySessionStore) Reap(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		report := session.StatusReport()
		if report.Status.IsTerminal() && report.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ====== In-memory workflows ======

// MemoryWorkflowStore keeps definitions in process memory. Definitions are
// cloned on the way in so later caller mutations cannot leak into sessions.
type MemoryWorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]*WorkflowDefinition
}

// NewMemoryWorkflowStore creates an empty store.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{workflows: make(map[string]*WorkflowDefinition)}
}

func (s *MemoryWorkflowStore) Save(_ context.Context, def *WorkflowDefinition) error {
	if def == nil {
		return types.NewError(types.ErrInvalidWorkflow, "workflow definition cannot be nil")
	}
	s.mu.Lock()
	s.workflows[def.ID] = def.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryWorkflowStore) Get(_ context.Context, workflowID string) (*WorkflowDefinition, error) {
	s.mu.RLock()
	def, ok := s.workflows[workflowID]
	s.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrWorkflowNotFound, "workflow not found: %s", workflowID)
	}
	return def, nil
}

// List returns definitions sorted by ID.
func (s *MemoryWorkflowStore) List(_ context.Context) ([]*WorkflowDefinition, error) {
	s.mu.RLock()
	defs := make([]*WorkflowDefinition, 0, len(s.workflows))
	for _, def := range s.workflows {
		defs = append(defs, def)
	}
	s.mu.RUnlock()
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs, nil
}

func (s *MemoryWorkflowStore) Delete(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[workflowID]; !ok {
		return types.Errorf(types.ErrWorkflowNotFound, "workflow not found: %s", workflowID)
	}
	delete(s.workflows, workflowID)
	return nil
}
