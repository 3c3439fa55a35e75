// Package config 提供 agentorch 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → AGENTORCH_ 前缀环境变量 的顺序叠加，
// 涵盖引擎、远程 Agent 客户端、Redis、日志与遥测。
package config
