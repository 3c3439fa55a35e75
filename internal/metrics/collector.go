// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/agentorch/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 workflow.MetricsRecorder
type Collector struct {
	// 会话指标
	sessionsTotal   *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	sessionSteps    *prometheus.HistogramVec
	iterationLimits *prometheus.CounterVec

	// 节点指标
	nodeExecutionsTotal *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec

	// Agent 通信指标
	agentRequestsTotal   *prometheus.CounterVec
	agentRequestDuration *prometheus.HistogramVec
	breakerTransitions   *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建指标收集器并注册到指定 Registerer
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 会话指标
	c.sessionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_sessions_total",
			Help:      "Total number of finished workflow sessions",
		},
		[]string{"workflow_id", "status"},
	)

	c.sessionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_session_duration_seconds",
			Help:      "Workflow session execution duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"workflow_id"},
	)

	c.sessionSteps = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_session_steps",
			Help:      "Number of execution steps per workflow session",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		},
		[]string{"workflow_id"},
	)

	c.iterationLimits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_iteration_limit_total",
			Help:      "Sessions stopped by the iteration limit",
		},
		[]string{"workflow_id"},
	)

	// 节点指标
	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"node_type", "result"},
	)

	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"node_type"},
	)

	// Agent 通信指标
	c.agentRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_requests_total",
			Help:      "Total number of requests sent to remote agents",
		},
		[]string{"agent_id", "outcome"},
	)

	c.agentRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_request_duration_seconds",
			Help:      "Remote agent request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_id"},
	)

	c.breakerTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_breaker_transitions_total",
			Help:      "Total number of agent circuit breaker state transitions",
		},
		[]string{"agent_id", "from_state", "to_state"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔀 工作流指标记录
// =============================================================================

// RecordSession 记录一次结束的会话
func (c *Collector) RecordSession(workflowID string, status workflow.SessionStatus, steps int, duration time.Duration) {
	c.sessionsTotal.WithLabelValues(workflowID, string(status)).Inc()
	c.sessionDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
	c.sessionSteps.WithLabelValues(workflowID).Observe(float64(steps))
}

// RecordNode 记录一次节点执行
func (c *Collector) RecordNode(nodeType workflow.NodeType, failed bool, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(string(nodeType), nodeResult(failed)).Inc()
	c.nodeDuration.WithLabelValues(string(nodeType)).Observe(duration.Seconds())
}

// RecordIterationLimit 记录一次迭代上限触发
func (c *Collector) RecordIterationLimit(workflowID string) {
	c.iterationLimits.WithLabelValues(workflowID).Inc()
}

// =============================================================================
// 🎭 Agent 通信指标记录
// =============================================================================

// RecordAgentRequest 记录一次远程 Agent 请求
func (c *Collector) RecordAgentRequest(agentID, outcome string, duration time.Duration) {
	c.agentRequestsTotal.WithLabelValues(agentID, outcome).Inc()
	c.agentRequestDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// RecordBreakerTransition 记录熔断器状态转换
func (c *Collector) RecordBreakerTransition(agentID, fromState, toState string) {
	c.breakerTransitions.WithLabelValues(agentID, fromState, toState).Inc()
}

func nodeResult(failed bool) string {
	if failed {
		return "error"
	}
	return "success"
}

var _ workflow.MetricsRecorder = (*Collector)(nil)
