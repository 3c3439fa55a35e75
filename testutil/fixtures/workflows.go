// =============================================================================
// 📦 测试数据工厂 - 工作流定义
// =============================================================================
// 提供常用的工作流图，用于引擎、CLI 与存储测试
// =============================================================================
package fixtures

import (
	"fmt"

	"github.com/BaSui01/agentorch/workflow"
)

// SingleAgentWorkflow 只有一个 Agent 节点的工作流
func SingleAgentWorkflow(id, agentID string) *workflow.WorkflowDefinition {
	def := &workflow.WorkflowDefinition{ID: id, Name: "single agent", EntryPoint: "agent"}
	def.AddNode(workflow.WorkflowNode{
		ID:     "agent",
		Type:   workflow.NodeTypeAgent,
		Config: map[string]any{"agent_id": agentID},
	})
	return def
}

// ReviewWorkflow writer -> guardrail -> decision，decision 命中 "approved"
// 时进入 publish，否则回到 writer
func ReviewWorkflow(id string) *workflow.WorkflowDefinition {
	def := &workflow.WorkflowDefinition{ID: id, Name: "draft and review", EntryPoint: "draft"}
	def.AddNode(workflow.WorkflowNode{
		ID:     "draft",
		Type:   workflow.NodeTypeAgent,
		Config: map[string]any{"agent_id": "writer"},
	}).AddNode(workflow.WorkflowNode{
		ID:   "safety",
		Type: workflow.NodeTypeGuardrail,
	}).AddNode(workflow.WorkflowNode{
		ID:     "review",
		Type:   workflow.NodeTypeAgent,
		Config: map[string]any{"agent_id": "reviewer"},
	}).AddNode(workflow.WorkflowNode{
		ID:   "gate",
		Type: workflow.NodeTypeDecision,
		Config: map[string]any{
			"conditions": []any{
				map[string]any{"name": "approved", "type": workflow.ConditionTypeContains, "text": "approved", "next_node": "publish"},
			},
			"default_next": "draft",
		},
	}).AddNode(workflow.WorkflowNode{
		ID:   "publish",
		Type: workflow.NodeTypeMonitor,
	})
	def.Connect("draft", "safety").Connect("safety", "review").Connect("review", "gate")
	return def
}

// ConsensusWorkflow 依次调用多个 Agent 后聚合
func ConsensusWorkflow(id string, agentIDs ...string) *workflow.WorkflowDefinition {
	def := &workflow.WorkflowDefinition{ID: id, Name: "consensus"}
	prev := ""
	for i, agentID := range agentIDs {
		nodeID := fmt.Sprintf("agent_%d", i+1)
		def.AddNode(workflow.WorkflowNode{
			ID:     nodeID,
			Type:   workflow.NodeTypeAgent,
			Config: map[string]any{"agent_id": agentID},
		})
		if prev == "" {
			def.EntryPoint = nodeID
		} else {
			def.Connect(prev, nodeID)
		}
		prev = nodeID
	}
	def.AddNode(workflow.WorkflowNode{
		ID:     "aggregate",
		Type:   workflow.NodeTypeAggregator,
		Config: map[string]any{"method": workflow.AggregationConsensus},
	})
	if prev == "" {
		def.EntryPoint = "aggregate"
	} else {
		def.Connect(prev, "aggregate")
	}
	return def
}

// LoopWorkflow 两个 Agent 节点互相连接，只会被迭代上限终止
func LoopWorkflow(id string) *workflow.WorkflowDefinition {
	def := &workflow.WorkflowDefinition{ID: id, Name: "ping pong", EntryPoint: "ping"}
	def.AddNode(workflow.WorkflowNode{ID: "ping", Type: workflow.NodeTypeAgent, Config: map[string]any{"agent_id": "ping"}}).
		AddNode(workflow.WorkflowNode{ID: "pong", Type: workflow.NodeTypeAgent, Config: map[string]any{"agent_id": "pong"}})
	def.Connect("ping", "pong").Connect("pong", "ping")
	return def
}

// ReviewWorkflowYAML 与 ReviewWorkflow 结构相同的 YAML 文本
const ReviewWorkflowYAML = `id: review
name: draft and review
nodes:
  - id: draft
    type: agent
    config:
      agent_id: writer
  - id: safety
    type: guardrail
  - id: review
    type: agent
    config:
      agent_id: reviewer
  - id: gate
    type: decision
    config:
      conditions:
        - name: approved
          type: contains
          text: approved
          next_node: publish
      default_next: draft
  - id: publish
    type: monitor
edges:
  - from: draft
    to: safety
  - from: safety
    to: review
  - from: review
    to: gate
entry_point: draft
`
