package workflow

import "context"

// WorkflowStreamEventType defines the type of workflow stream event.
type WorkflowStreamEventType string

const (
	// WorkflowEventNodeStart is emitted before a node begins execution.
	WorkflowEventNodeStart WorkflowStreamEventType = "node_start"
	// WorkflowEventNodeComplete is emitted after a node finishes successfully.
	WorkflowEventNodeComplete WorkflowStreamEventType = "node_complete"
	// WorkflowEventNodeError is emitted when a node fails.
	WorkflowEventNodeError WorkflowStreamEventType = "node_error"
	// WorkflowEventSessionComplete is emitted once the session reaches a terminal status.
	WorkflowEventSessionComplete WorkflowStreamEventType = "session_complete"
)

// WorkflowStreamEvent carries information about a workflow execution event.
type WorkflowStreamEvent struct {
	Type      WorkflowStreamEventType `json:"type"`
	SessionID string                  `json:"session_id"`
	NodeID    string                  `json:"node_id,omitempty"`
	NodeType  NodeType                `json:"node_type,omitempty"`
	Status    SessionStatus           `json:"status,omitempty"`
	Data      any                     `json:"data,omitempty"`
	Error     error                   `json:"-"`
}

// WorkflowStreamEmitter is a callback that receives workflow stream events.
type WorkflowStreamEmitter func(WorkflowStreamEvent)

// workflowStreamEmitterKey is the context key for WorkflowStreamEmitter.
type workflowStreamEmitterKey struct{}

// WithWorkflowStreamEmitter stores a WorkflowStreamEmitter in the context.
func WithWorkflowStreamEmitter(ctx context.Context, emitter WorkflowStreamEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, workflowStreamEmitterKey{}, emitter)
}

// workflowStreamEmitterFromContext retrieves the WorkflowStreamEmitter from context.
func workflowStreamEmitterFromContext(ctx context.Context) (WorkflowStreamEmitter, bool) {
	if ctx == nil {
		return nil, false
	}
	v := ctx.Value(workflowStreamEmitterKey{})
	if v == nil {
		return nil, false
	}
	emit, ok := v.(WorkflowStreamEmitter)
	return emit, ok && emit != nil
}

func emitEvent(ctx context.Context, event WorkflowStreamEvent) {
	if emit, ok := workflowStreamEmitterFromContext(ctx); ok {
		emit(event)
	}
}
