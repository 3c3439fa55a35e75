// =============================================================================
// 🤖 MockCommunicator - Agent 通信模拟实现
// =============================================================================
// 用于测试的 AgentCommunicator，按 agent_id 返回预置响应或错误
//
// 使用方法:
//
//	comm := mocks.NewMockCommunicator().
//		WithResponse("writer", workflow.AgentResponse{"content": "draft"}).
//		WithError("reviewer", errors.New("down"))
//	engine := workflow.NewEngine(workflow.WithCommunicator(comm))
// =============================================================================
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/agentorch/types"
	"github.com/BaSui01/agentorch/workflow"
)

// Call 记录一次 SendTaskToAgent 调用
type Call struct {
	AgentID   string
	Task      workflow.AgentTask
	SessionID string
	NodeID    string
}

// MockCommunicator 是 AgentCommunicator 的模拟实现
type MockCommunicator struct {
	mu sync.Mutex

	responses map[string]workflow.AgentResponse
	errs      map[string]error
	handler   func(agentID string, task workflow.AgentTask) (workflow.AgentResponse, error)

	// 未配置的 Agent 是否回显用户输入
	echo bool

	calls []Call
}

// =============================================================================
// 🔧 构造函数和 Builder 方法
// =============================================================================

// NewMockCommunicator 创建新的 MockCommunicator，未配置的 Agent 返回错误
func NewMockCommunicator() *MockCommunicator {
	return &MockCommunicator{
		responses: make(map[string]workflow.AgentResponse),
		errs:      make(map[string]error),
	}
}

// WithResponse 设置某个 Agent 的固定响应
func (m *MockCommunicator) WithResponse(agentID string, resp workflow.AgentResponse) *MockCommunicator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[agentID] = resp
	return m
}

// WithContent 设置某个 Agent 的响应文本
func (m *MockCommunicator) WithContent(agentID, content string) *MockCommunicator {
	return m.WithResponse(agentID, workflow.AgentResponse{"content": content})
}

// WithError 让某个 Agent 返回错误
func (m *MockCommunicator) WithError(agentID string, err error) *MockCommunicator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[agentID] = err
	return m
}

// WithHandler 设置兜底处理函数，优先级低于固定响应和错误
func (m *MockCommunicator) WithHandler(fn func(agentID string, task workflow.AgentTask) (workflow.AgentResponse, error)) *MockCommunicator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// WithEcho 未配置的 Agent 以 "<agent>: <user_input>" 作为 content 返回
func (m *MockCommunicator) WithEcho() *MockCommunicator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.echo = true
	return m
}

// =============================================================================
// 🎯 AgentCommunicator 实现
// =============================================================================

// SendTaskToAgent 实现 workflow.AgentCommunicator
func (m *MockCommunicator) SendTaskToAgent(ctx context.Context, agentID string, task workflow.AgentTask) (workflow.AgentResponse, error) {
	sessionID, _ := types.SessionID(ctx)
	nodeID, _ := types.NodeID(ctx)

	m.mu.Lock()
	m.calls = append(m.calls, Call{
		AgentID:   agentID,
		Task:      task,
		SessionID: sessionID,
		NodeID:    nodeID,
	})
	resp, hasResp := m.responses[agentID]
	err := m.errs[agentID]
	handler := m.handler
	echo := m.echo
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case err != nil:
		return nil, err
	case hasResp:
		return cloneResponse(resp), nil
	case handler != nil:
		return handler(agentID, task)
	case echo:
		return workflow.AgentResponse{"content": fmt.Sprintf("%s: %s", agentID, task.UserInput)}, nil
	default:
		return nil, types.Errorf(types.ErrUpstreamError, "no response configured for agent %s", agentID)
	}
}

// =============================================================================
// 📊 调用记录
// =============================================================================

// Calls 返回调用记录副本
func (m *MockCommunicator) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回某个 Agent 被调用的次数，agentID 为空时返回总数
func (m *MockCommunicator) CallCount(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if agentID == "" {
		return len(m.calls)
	}
	n := 0
	for _, c := range m.calls {
		if c.AgentID == agentID {
			n++
		}
	}
	return n
}

// Reset 清空调用记录
func (m *MockCommunicator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func cloneResponse(resp workflow.AgentResponse) workflow.AgentResponse {
	if resp == nil {
		return workflow.AgentResponse{}
	}
	out := make(workflow.AgentResponse, len(resp))
	for k, v := range resp {
		out[k] = v
	}
	return out
}

var _ workflow.AgentCommunicator = (*MockCommunicator)(nil)
