// =============================================================================
// 📦 agentorch 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:      DefaultEngineConfig(),
		AgentClient: DefaultAgentClientConfig(),
		Redis:       DefaultRedisConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxIterations:         50,
		SessionTTL:            time.Hour,
		ReapInterval:          5 * time.Minute,
		Store:                 StoreMemory,
		StrictValidation:      false,
		MaxConcurrentSessions: 4,
	}
}

// DefaultAgentClientConfig 返回默认 Agent 客户端配置
func DefaultAgentClientConfig() AgentClientConfig {
	return AgentClientConfig{
		BaseURL:                 "http://localhost:8090",
		Timeout:                 30 * time.Second,
		MaxRetries:              2,
		RetryDelay:              200 * time.Millisecond,
		MaxRetryDelay:           5 * time.Second,
		RateLimitRPS:            0,
		RateLimitBurst:          10,
		BreakerFailureThreshold: 5,
		BreakerRecoveryTimeout:  30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "agentorch:",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentorch",
		SampleRate:   0.1,
	}
}
