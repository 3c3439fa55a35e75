// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
agentorch 是工作流编排引擎的命令行入口。

run 子命令加载配置与工作流定义，为每个 --input 创建会话并执行，
结果以 JSON 写到标准输出；日志写到标准错误。会话存储按
engine.store 选择内存或 Redis，--metrics-addr 在执行期间暴露
Prometheus 指标。validate 子命令只做结构校验。
*/
package main
