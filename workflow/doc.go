// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供多 Agent 工作流编排与会话执行引擎。

# 概述

workflow 包按有向图执行类型化节点（Agent、Decision、Handoff、Aggregator、
Human、Memory、Guardrail、Monitor），在节点之间传递共享上下文，
并为每个会话记录可审计的执行轨迹。每个会话由单个 goroutine 从入口节点
驱动至终态，唯一的阻塞点是对外部 AgentCommunicator 的调用。

# 核心接口与类型

  - WorkflowDefinition — 节点、边与入口点组成的可复用工作流图
  - WorkflowSession    — 一次运行：状态、上下文、执行路径
  - WorkflowContext    — 会话上下文（CurrentData 后写覆盖、有序 AgentOutputs）
  - NodeExecutor       — 节点执行器接口，按 NodeType 注册于 ExecutorRegistry
  - Router             — 下一节点解析（next_node 优先，其次首条出边）
  - Runner             — 执行循环（迭代上限 50、错误转为会话状态）
  - Engine             — 门面：工作流注册、会话创建 / 执行 / 状态查询
  - SessionStore / WorkflowStore — 存储抽象，默认内存实现，可替换为 Redis
    （redisstore）；工作流定义也可保存为目录中的文件（fsstore）

# 主要能力

  - 节点失败不抛出：会话进入 error 状态并返回部分执行路径
  - 每会话互斥锁：同一会话同一时刻仅有一次执行
  - 可观测性：zap 结构化日志、OpenTelemetry span、MetricsRecorder 指标
  - 执行事件流：WithWorkflowStreamEmitter 订阅节点开始 / 完成 / 失败事件
  - 序列化：WorkflowDefinition 支持 JSON / YAML 导入导出与 ValidateDefinition 校验
  - 会话回收：StartReaper 按 TTL 清理终态会话
*/
package workflow
