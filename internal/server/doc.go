// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理后台 HTTP 监听器的生命周期。

agentorch 的 CLI 在批量执行工作流时通过它暴露 Prometheus /metrics。
Manager 在 Start 时立即绑定端口（支持 ":0" 随机端口并通过 Addr
返回实际地址），在后台 goroutine 中提供服务，运行期错误经 Errors
通道上报，Shutdown 按配置超时优雅关闭且可重复调用。
*/
package server
