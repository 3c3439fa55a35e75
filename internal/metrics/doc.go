// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的工作流执行指标。

# 核心类型

  - Collector：实现 workflow.MetricsRecorder，同时接收 Agent
    客户端的请求结果与熔断器状态变化。

# 指标

  - 会话：按 workflow_id/status 计数，耗时与步数直方图，
    以及触达迭代上限的次数。
  - 节点：按 node_type/result 计数与耗时。
  - Agent 请求：按 agent_id/outcome 计数与耗时。
  - 熔断器：按 agent_id/from_state/to_state 计数。

NewCollectorWith 接受自定义 Registerer，测试与 CLI 使用独立
Registry，避免重复注册。
*/
package metrics
