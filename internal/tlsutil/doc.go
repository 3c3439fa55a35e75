// Package tlsutil 为 Agent HTTP 客户端和 Redis 连接提供加固的 TLS 设置
// （TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
