// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 agentclient 提供基于 HTTP 的 Agent 通信器，实现 workflow.AgentCommunicator。

# 概述

Client 将 AgentTask 以 JSON 形式 POST 到 {base_url}/agents/{agent_id}/tasks，
并把响应体解码为 AgentResponse。会话、工作流、节点与追踪 ID 通过请求头
透传，同时注入 OpenTelemetry 传播头。

# 弹性

  - 限流：golang.org/x/time/rate 令牌桶，所有 Agent 共享。
  - 重试：仅对可重试错误（429、5xx、网络错误）按指数退避重试，
    并尊重 Retry-After。
  - 熔断：每个 Agent 独立的熔断器，连续失败后打开，
    恢复超时后进入半开状态探测。4xx 与取消不计入失败。

# 错误语义

所有错误均为 *types.Error，携带错误码、HTTP 状态、AgentID 与重试标记。
*/
package agentclient
