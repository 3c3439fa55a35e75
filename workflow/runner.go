package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentorch/types"
)

// DefaultMaxIterations caps the node executions of a single session.
const DefaultMaxIterations = 50

const tracerName = "github.com/BaSui01/agentorch/workflow"

// MetricsRecorder receives runner measurements.
type MetricsRecorder interface {
	RecordSession(workflowID string, status SessionStatus, steps int, duration time.Duration)
	RecordNode(nodeType NodeType, failed bool, duration time.Duration)
	RecordIterationLimit(workflowID string)
}

type nopMetrics struct{}

func (nopMetrics) RecordSession(string, SessionStatus, int, time.Duration) {}
func (nopMetrics) RecordNode(NodeType, bool, time.Duration)                {}
func (nopMetrics) RecordIterationLimit(string)                             {}

// StepHook is called after every appended step and after the final transition.
type StepHook func(ctx context.Context, session *WorkflowSession)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxIterations overrides the iteration cap. Non-positive values are ignored.
func WithMaxIterations(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithRouter replaces the graph router.
func WithRouter(router Router) RunnerOption {
	return func(r *Runner) { r.router = router }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) RunnerOption {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracer sets the tracer used for session and node spans.
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithStepHook registers a hook invoked as the session progresses.
func WithStepHook(hook StepHook) RunnerOption {
	return func(r *Runner) { r.onStep = hook }
}

// Runner drives the execution loop of a session.
type Runner struct {
	executors     *ExecutorRegistry
	router        Router
	maxIterations int
	metrics       MetricsRecorder
	tracer        trace.Tracer
	now           func() time.Time
	onStep        StepHook
	logger        *zap.Logger
}

// NewRunner creates a runner dispatching to the given executors.
func NewRunner(executors *ExecutorRegistry, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		executors:     executors,
		router:        GraphRouter{},
		maxIterations: DefaultMaxIterations,
		metrics:       nopMetrics{},
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
		logger:        logger.With(zap.String("component", "session_runner")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxIterations returns the iteration cap.
func (r *Runner) MaxIterations() int {
	return r.maxIterations
}

// Run executes a pending session to a terminal status.
//
// Node failures never surface as an error: they end the session in
// SessionStatusError and the partial execution path is returned. The error
// return is reserved for precondition violations, before any node runs.
func (r *Runner) Run(ctx context.Context, def *WorkflowDefinition, session *WorkflowSession) (*ExecutionResult, error) {
	if def == nil {
		return nil, types.NewError(types.ErrWorkflowNotFound, "workflow definition cannot be nil")
	}
	if session == nil {
		return nil, types.NewError(types.ErrSessionNotFound, "session cannot be nil")
	}
	if status := session.GetStatus(); status != SessionStatusPending {
		return nil, types.Errorf(types.ErrInvalidSessionState,
			"session %s is %s, only pending sessions can be executed", session.SessionID, status)
	}

	ctx = types.WithWorkflowID(types.WithSessionID(ctx, session.SessionID), def.ID)
	ctx, span := r.tracer.Start(ctx, "workflow.session", trace.WithAttributes(
		attribute.String("workflow.id", def.ID),
		attribute.String("workflow.session_id", session.SessionID),
	))
	defer span.End()

	logger := r.logger.With(
		zap.String("session_id", session.SessionID),
		zap.String("workflow_id", def.ID),
	)
	startTime := r.now()
	session.start(def.EntryPoint, startTime)

	logger.Info("starting workflow session",
		zap.String("entry_node", def.EntryPoint),
		zap.Int("max_iterations", r.maxIterations),
	)

	var failure error
	current := def.EntryPoint
	iterations := 0

	for {
		if iterations >= r.maxIterations {
			logger.Warn("iteration limit reached, stopping session",
				zap.String("code", string(types.ErrIterationLimitExceeded)),
				zap.Int("iterations", iterations),
				zap.String("pending_node", current),
			)
			r.metrics.RecordIterationLimit(def.ID)
			break
		}

		node, ok := def.GetNode(current)
		if !ok {
			failure = types.Errorf(types.ErrNodeNotFound, "node not found: %q", current)
			break
		}
		iterations++

		output, err := r.executeNode(ctx, session, node, logger)
		r.hook(ctx, session)
		if err != nil {
			failure = err
			break
		}

		session.Context.Merge(output, r.now())

		next, ok := r.router.Next(def, node.ID, output)
		if !ok {
			break
		}
		session.setCurrentNode(next, r.now())
		current = next
	}

	status := SessionStatusCompleted
	errMsg := ""
	if failure != nil {
		status = SessionStatusError
		errMsg = failure.Error()
		span.RecordError(failure)
		span.SetStatus(codes.Error, errMsg)
	}
	session.finish(status, errMsg, r.now())
	r.hook(ctx, session)

	steps := session.Steps()
	duration := r.now().Sub(startTime)
	span.SetAttributes(
		attribute.String("workflow.status", string(status)),
		attribute.Int("workflow.steps", len(steps)),
	)
	r.metrics.RecordSession(def.ID, status, len(steps), duration)
	emitEvent(ctx, WorkflowStreamEvent{
		Type:      WorkflowEventSessionComplete,
		SessionID: session.SessionID,
		Status:    status,
		Error:     failure,
	})

	result := &ExecutionResult{
		SessionID:     session.SessionID,
		Status:        status,
		ExecutionPath: steps,
	}
	if failure != nil {
		result.Error = errMsg
		logger.Error("workflow session failed",
			zap.Int("steps", len(steps)),
			zap.Duration("duration", duration),
			zap.Error(failure),
		)
	} else {
		result.Result = session.Context.Snapshot()
		logger.Info("workflow session completed",
			zap.Int("steps", len(steps)),
			zap.Duration("duration", duration),
		)
	}
	return result, nil
}

// executeNode runs one node and appends its step. The step is appended even
// when the node fails.
func (r *Runner) executeNode(ctx context.Context, session *WorkflowSession, node *WorkflowNode, logger *zap.Logger) (map[string]any, error) {
	input := session.Context.Snapshot()

	ctx = types.WithNodeID(ctx, node.ID)
	ctx, span := r.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("workflow.node.id", node.ID),
		attribute.String("workflow.node.type", string(node.Type)),
	))
	defer span.End()

	logger.Debug("executing node",
		zap.String("node_id", node.ID),
		zap.String("node_type", string(node.Type)),
	)
	emitEvent(ctx, WorkflowStreamEvent{
		Type:      WorkflowEventNodeStart,
		SessionID: session.SessionID,
		NodeID:    node.ID,
		NodeType:  node.Type,
	})

	startTime := r.now()
	output, err := r.dispatch(ctx, session, node)
	endTime := r.now()
	duration := endTime.Sub(startTime)

	step := ExecutionStep{
		StepID:     uuid.NewString(),
		NodeID:     node.ID,
		NodeType:   node.Type,
		AgentID:    stepAgentID(node, output),
		InputData:  input,
		OutputData: cloneMap(output),
		Status:     StepStatusCompleted,
		StartTime:  startTime,
		EndTime:    endTime,
	}
	if err != nil {
		step.ErrorMessage = err.Error()
	}
	session.appendStep(step)
	r.metrics.RecordNode(node.Type, err != nil, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("node execution failed",
			zap.String("node_id", node.ID),
			zap.String("node_type", string(node.Type)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		emitEvent(ctx, WorkflowStreamEvent{
			Type:      WorkflowEventNodeError,
			SessionID: session.SessionID,
			NodeID:    node.ID,
			NodeType:  node.Type,
			Error:     err,
		})
		return nil, err
	}

	logger.Debug("node execution completed",
		zap.String("node_id", node.ID),
		zap.Duration("duration", duration),
	)
	emitEvent(ctx, WorkflowStreamEvent{
		Type:      WorkflowEventNodeComplete,
		SessionID: session.SessionID,
		NodeID:    node.ID,
		NodeType:  node.Type,
		Data:      step.OutputData,
	})
	return output, nil
}

// dispatch selects the executor for the node and converts every failure,
// panics included, into a node execution error.
func (r *Runner) dispatch(ctx context.Context, session *WorkflowSession, node *WorkflowNode) (output map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			output = nil
			err = types.Errorf(types.ErrNodeExecution, "node %s panicked: %v", node.ID, rec)
		}
	}()

	executor, ok := r.executors.Get(node.Type)
	if !ok {
		return nil, types.Errorf(types.ErrNodeExecution, "node %s failed", node.ID).
			WithCause(types.Errorf(types.ErrUnknownNodeType, "unknown node type: %s", node.Type))
	}

	output, err = executor.Execute(ctx, session, node)
	if err != nil {
		return nil, nodeError(node, err)
	}
	return output, nil
}

func (r *Runner) hook(ctx context.Context, session *WorkflowSession) {
	if r.onStep != nil {
		r.onStep(ctx, session)
	}
}

func nodeError(node *WorkflowNode, err error) error {
	if types.GetErrorCode(err) == types.ErrNodeExecution {
		return err
	}
	return types.NewError(types.ErrNodeExecution, fmt.Sprintf("node %s (%s) failed", node.ID, node.Type)).WithCause(err)
}

func stepAgentID(node *WorkflowNode, output map[string]any) string {
	if node.Type != NodeTypeAgent {
		return ""
	}
	if id := stringValue(output["agent_id"]); id != "" {
		return id
	}
	return configString(node.Config, "agent_id", "")
}
