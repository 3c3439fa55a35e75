// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供编排引擎测试共享的辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertExecutionPath / AssertErrorCode / AssertEventuallyTrue
  - 文件工具: WriteFile / WriteDefinition，写入 t.TempDir()

# 子包

  - testutil/mocks: MockCommunicator，按 agent_id 返回预置响应或错误，
    记录调用时的 session/node id
  - testutil/fixtures: 常用工作流图（单 Agent、评审回环、共识聚合、死循环）

# 使用示例

	comm := mocks.NewMockCommunicator().WithContent("writer", "draft")
	engine := workflow.NewEngine(workflow.WithCommunicator(comm))
	require.NoError(t, engine.RegisterWorkflow(ctx, fixtures.SingleAgentWorkflow("wf", "writer")))
*/
package testutil
