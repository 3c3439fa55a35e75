// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentorch 编排引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、agentclient、
cmd 等上层模块提供统一的错误码与 context 传播约定，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、AgentID 标记
  - 引擎错误码        — SESSION_NOT_FOUND、WORKFLOW_NOT_FOUND、NODE_NOT_FOUND、
    UNKNOWN_NODE_TYPE、AGENT_COMMUNICATOR_UNAVAILABLE、NODE_EXECUTION_ERROR 等
  - 传输错误码        — UPSTREAM_ERROR、TIMEOUT、RATE_LIMITED、SERVICE_UNAVAILABLE

# 主要能力

  - Context 传播：WithTraceID / WithSessionID / WithWorkflowID / WithNodeID
  - 错误工具链：NewError / Errorf / AsError / IsErrorCode / IsRetryable
*/
package types
