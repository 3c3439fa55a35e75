// Package telemetry 封装 OpenTelemetry 追踪初始化，
// 为工作流运行器的会话与节点 span 配置全局 TracerProvider。
// 当遥测功能禁用时保持 noop 实现，不连接任何外部服务。
package telemetry
