package workflow

import (
	"sync"
	"time"
)

// SessionStatus represents the lifecycle state of a session
type SessionStatus string

const (
	// SessionStatusPending is the state of a created, not yet executed session
	SessionStatusPending SessionStatus = "pending"
	// SessionStatusRunning indicates the execution loop is in progress
	SessionStatusRunning SessionStatus = "running"
	// SessionStatusPaused is declared for callers; the runner never enters it
	SessionStatusPaused SessionStatus = "paused"
	// SessionStatusCompleted indicates the loop ended normally or hit the iteration cap
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusError indicates a node or lookup failure ended the loop
	SessionStatusError SessionStatus = "error"
	// SessionStatusCancelled is declared for callers; the runner never enters it
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether no further transition can happen.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusError, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus is the status recorded on an execution step.
// Failed steps are recorded as completed with ErrorMessage set.
type StepStatus string

// StepStatusCompleted is the only status the runner records.
const StepStatusCompleted StepStatus = "completed"

// ExecutionStep records one node execution. Immutable once appended.
type ExecutionStep struct {
	StepID       string         `json:"step_id"`
	NodeID       string         `json:"node_id"`
	NodeType     NodeType       `json:"node_type"`
	AgentID      string         `json:"agent_id,omitempty"`
	InputData    map[string]any `json:"input_data"`
	OutputData   map[string]any `json:"output_data"`
	Status       StepStatus     `json:"status"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Duration returns how long the node ran.
func (s ExecutionStep) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// WorkflowSession is one stateful run of a workflow against a user input.
// Fields are written only by the runner; use the accessor methods to read
// them while a session may be executing.
type WorkflowSession struct {
	SessionID     string           `json:"session_id"`
	WorkflowID    string           `json:"workflow_id"`
	Status        SessionStatus    `json:"status"`
	Context       *WorkflowContext `json:"context"`
	CurrentNode   string           `json:"current_node,omitempty"`
	ExecutionPath []ExecutionStep  `json:"execution_path"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`

	mu sync.RWMutex
}

// NewWorkflowSession creates a pending session with an empty context.
func NewWorkflowSession(sessionID, workflowID, userInput string, now time.Time) *WorkflowSession {
	return &WorkflowSession{
		SessionID:     sessionID,
		WorkflowID:    workflowID,
		Status:        SessionStatusPending,
		Context:       NewWorkflowContext(sessionID, userInput, now),
		ExecutionPath: make([]ExecutionStep, 0),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// GetStatus returns the current status.
func (s *WorkflowSession) GetStatus() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Steps returns a copy of the execution path.
func (s *WorkflowSession) Steps() []ExecutionStep {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps := make([]ExecutionStep, len(s.ExecutionPath))
	copy(steps, s.ExecutionPath)
	return steps
}

// StatusReport builds the status query view of the session.
func (s *WorkflowSession) StatusReport() *SessionStatusReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &SessionStatusReport{
		SessionID:      s.SessionID,
		Status:         s.Status,
		CurrentNode:    s.CurrentNode,
		StepsCompleted: len(s.ExecutionPath),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func (s *WorkflowSession) start(entry string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = SessionStatusRunning
	s.CurrentNode = entry
	s.UpdatedAt = now
}

func (s *WorkflowSession) setCurrentNode(nodeID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentNode = nodeID
	s.UpdatedAt = now
}

func (s *WorkflowSession) appendStep(step ExecutionStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ExecutionPath = append(s.ExecutionPath, step)
}

func (s *WorkflowSession) finish(status SessionStatus, errMsg string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.ErrorMessage = errMsg
	s.UpdatedAt = now
}

// ExecutionResult is returned by ExecuteWorkflow. Callers branch on Status.
type ExecutionResult struct {
	SessionID     string          `json:"session_id"`
	Status        SessionStatus   `json:"status"`
	Result        map[string]any  `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	ExecutionPath []ExecutionStep `json:"execution_path"`
}

// SessionStatusReport answers a status query. When the session does not
// exist only SessionID and Error are set.
type SessionStatusReport struct {
	SessionID      string        `json:"session_id"`
	Status         SessionStatus `json:"status,omitempty"`
	CurrentNode    string        `json:"current_node,omitempty"`
	StepsCompleted int           `json:"steps_completed"`
	CreatedAt      time.Time     `json:"created_at,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at,omitempty"`
	Error          string        `json:"error,omitempty"`
}
