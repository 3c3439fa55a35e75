// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的连接管理，是 Redis 会话存储的底层。

# 概述

本包封装 go-redis 客户端，统一处理键前缀、默认 TTL、JSON 序列化
与有序索引。Manager 负责连接生命周期：初始化时 Ping 校验，
后台定时健康检查，Close 时停止检查并释放连接。

# 核心类型

  - Manager：持有 Redis 客户端，提供 Get/Set/Delete/Exists/Expire、
    GetJSON/SetJSON，以及基于 ZSET 的 IndexAdd/IndexRemove/
    IndexMembers/IndexRangeBelow。
  - Config：地址、密码、数据库、键前缀、默认 TTL、连接池、健康检查间隔
    与 TLS 开关（tlsutil 加固配置）。

# 主要能力

  - TTL 语义：0 使用 DefaultTTL，Persistent 表示永不过期。
  - 有序索引：按时间戳记录终态会话，供回收器按截止时间批量清理。
  - 错误语义：ErrCacheMiss 与 IsCacheMiss，关闭后返回 ErrClosed。
*/
package cache
