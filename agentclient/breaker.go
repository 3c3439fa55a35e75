package agentclient

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	// BreakerClosed 正常状态，请求直接发往 Agent
	BreakerClosed BreakerState = iota
	// BreakerOpen 熔断状态，请求在本地被拒绝
	BreakerOpen
	// BreakerHalfOpen 半开状态，放行有限的探测请求
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// FailureThreshold 连续失败多少次后熔断，<=0 表示关闭熔断
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`
	// RecoveryTimeout 熔断后多久进入半开
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	// HalfOpenMaxProbes 半开状态允许的探测请求数
	HalfOpenMaxProbes int `yaml:"half_open_max_probes" json:"half_open_max_probes"`
	// SuccessThreshold 半开状态下连续成功多少次后恢复
	SuccessThreshold int `yaml:"success_threshold" json:"success_threshold"`
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		HalfOpenMaxProbes: 3,
		SuccessThreshold:  2,
	}
}

// BreakerEvent 熔断器状态变更事件
type BreakerEvent struct {
	AgentID   string       `json:"agent_id"`
	OldState  BreakerState `json:"old_state"`
	NewState  BreakerState `json:"new_state"`
	Timestamp time.Time    `json:"timestamp"`
	Reason    string       `json:"reason"`
	Failures  int          `json:"failures"`
}

// BreakerListener 接收状态变更事件，在锁外同步调用
type BreakerListener func(BreakerEvent)

// Breaker 单个 Agent 的熔断器
type Breaker struct {
	agentID     string
	config      BreakerConfig
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
	probes      int
	listener    BreakerListener
	now         func() time.Time
	logger      *zap.Logger
	mu          sync.Mutex
}

func newBreaker(agentID string, config BreakerConfig, listener BreakerListener, now func() time.Time, logger *zap.Logger) *Breaker {
	return &Breaker{
		agentID:  agentID,
		config:   config,
		listener: listener,
		now:      now,
		logger:   logger.With(zap.String("agent_id", agentID)),
	}
}

// Allow 判断请求能否发出；拒绝时返回原因
func (b *Breaker) Allow() error {
	if b.config.FailureThreshold <= 0 {
		return nil
	}

	b.mu.Lock()
	var event *BreakerEvent
	var err error

	switch b.state {
	case BreakerOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed >= b.config.RecoveryTimeout {
			event = b.transition(BreakerHalfOpen, "recovery timeout elapsed")
			b.probes = 1
			b.successes = 0
		} else {
			err = fmt.Errorf("circuit open for agent %s after %d consecutive failures, retry in %v",
				b.agentID, b.failures, b.config.RecoveryTimeout-elapsed)
		}
	case BreakerHalfOpen:
		if b.probes < b.config.HalfOpenMaxProbes {
			b.probes++
		} else {
			err = fmt.Errorf("circuit half-open for agent %s: %d probes in flight", b.agentID, b.probes)
		}
	}
	b.mu.Unlock()

	b.notify(event)
	return err
}

// RecordSuccess 记录一次成功调用
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var event *BreakerEvent
	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			event = b.transition(BreakerClosed, fmt.Sprintf("%d consecutive successes in half-open", b.successes))
			b.failures = 0
			b.successes = 0
			b.probes = 0
		}
	}
	b.mu.Unlock()
	b.notify(event)
}

// RecordFailure 记录一次失败调用
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	var event *BreakerEvent
	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case BreakerClosed:
		if b.config.FailureThreshold > 0 && b.failures >= b.config.FailureThreshold {
			event = b.transition(BreakerOpen, fmt.Sprintf("%d consecutive failures", b.failures))
		}
	case BreakerHalfOpen:
		b.successes = 0
		event = b.transition(BreakerOpen, "failure in half-open state")
	}
	b.mu.Unlock()
	b.notify(event)
}

// Release 归还一个半开探测名额，用于既不算成功也不算失败的调用
func (b *Breaker) Release() {
	b.mu.Lock()
	if b.state == BreakerHalfOpen && b.probes > 0 {
		b.probes--
	}
	b.mu.Unlock()
}

// State 当前状态
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures 连续失败次数
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// transition 必须在锁内调用
func (b *Breaker) transition(to BreakerState, reason string) *BreakerEvent {
	from := b.state
	b.state = to

	b.logger.Info("circuit breaker state change",
		zap.String("old_state", from.String()),
		zap.String("new_state", to.String()),
		zap.String("reason", reason),
		zap.Int("failures", b.failures))

	return &BreakerEvent{
		AgentID:   b.agentID,
		OldState:  from,
		NewState:  to,
		Timestamp: b.now(),
		Reason:    reason,
		Failures:  b.failures,
	}
}

func (b *Breaker) notify(event *BreakerEvent) {
	if event != nil && b.listener != nil {
		b.listener(*event)
	}
}

// BreakerRegistry 按 Agent ID 管理熔断器
type BreakerRegistry struct {
	breakers map[string]*Breaker
	config   BreakerConfig
	listener BreakerListener
	now      func() time.Time
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewBreakerRegistry 创建熔断器注册表
func NewBreakerRegistry(config BreakerConfig, listener BreakerListener, logger *zap.Logger) *BreakerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerRegistry{
		breakers: make(map[string]*Breaker),
		config:   config,
		listener: listener,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "agent_breaker")),
	}
}

// Get 获取或创建 Agent 的熔断器
func (r *BreakerRegistry) Get(agentID string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[agentID]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[agentID]; ok {
		return b
	}
	b = newBreaker(agentID, r.config, r.listener, r.now, r.logger)
	r.breakers[agentID] = b
	return b
}

// States 返回所有熔断器状态
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	states := make(map[string]BreakerState, len(r.breakers))
	for id, b := range r.breakers {
		states[id] = b.State()
	}
	return states
}
