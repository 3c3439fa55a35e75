// Package cache provides the internal Redis connection manager.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentorch/internal/tlsutil"
)

// Persistent stores a value without expiry.
const Persistent time.Duration = -1

// =============================================================================
// 💾 连接管理器
// =============================================================================

// Manager 封装 Redis 客户端，所有键自动加上 KeyPrefix
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// Config Redis 连接配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 键前缀，用于多个引擎实例共用同一 Redis
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// 启用 TLS 连接
	TLS bool `yaml:"tls" json:"tls"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		KeyPrefix:           "agentorch:",
		DefaultTTL:          time.Hour,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager 连接 Redis 并创建管理器
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	}
	if config.TLS {
		opts.TLSConfig = tlsutil.ClientConfig("")
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stop:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("redis manager initialized",
		zap.String("addr", config.Addr),
		zap.String("key_prefix", config.KeyPrefix),
		zap.Int("pool_size", config.PoolSize),
	)

	return m, nil
}

// Key 返回加上前缀后的完整键
func (m *Manager) Key(key string) string {
	return m.config.KeyPrefix + key
}

// =============================================================================
// 🎯 键值操作
// =============================================================================

func (m *Manager) checkOpen() error {
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Get 获取值，不存在时返回 ErrCacheMiss
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return "", err
	}

	val, err := m.redis.Get(ctx, m.Key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

// Set 写入值。ttl 为 0 时使用 DefaultTTL，为 Persistent 时不过期
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	switch {
	case ttl == 0:
		ttl = m.config.DefaultTTL
	case ttl < 0:
		ttl = 0
	}

	if err := m.redis.Set(ctx, m.Key(key), value, ttl).Err(); err != nil {
		m.logger.Error("redis set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// GetJSON 读取并反序列化 JSON 值
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal value of %s: %w", key, err)
	}
	return nil
}

// SetJSON 序列化为 JSON 后写入
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value of %s: %w", key, err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete 删除键，返回实际删除的数量
func (m *Manager) Delete(ctx context.Context, keys ...string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := m.redis.Del(ctx, m.keys(keys)...).Result()
	if err != nil {
		m.logger.Error("redis delete failed", zap.Strings("keys", keys), zap.Error(err))
		return 0, fmt.Errorf("redis delete failed: %w", err)
	}
	return n, nil
}

// Exists 返回存在的键数量
func (m *Manager) Exists(ctx context.Context, keys ...string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}

	n, err := m.redis.Exists(ctx, m.keys(keys)...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists check failed: %w", err)
	}
	return n, nil
}

// Expire 设置键的过期时间
func (m *Manager) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	if err := m.redis.Expire(ctx, m.Key(key), ttl).Err(); err != nil {
		return fmt.Errorf("redis expire failed: %w", err)
	}
	return nil
}

// =============================================================================
// 📇 有序索引
// =============================================================================

// IndexAdd 以 score 将 member 加入有序索引，已存在时更新 score
func (m *Manager) IndexAdd(ctx context.Context, index, member string, score float64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	if err := m.redis.ZAdd(ctx, m.Key(index), redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("redis index add failed: %w", err)
	}
	return nil
}

// IndexRemove 从有序索引中移除成员
func (m *Manager) IndexRemove(ctx context.Context, index string, members ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	args := make([]any, len(members))
	for i, member := range members {
		args[i] = member
	}
	if err := m.redis.ZRem(ctx, m.Key(index), args...).Err(); err != nil {
		return fmt.Errorf("redis index remove failed: %w", err)
	}
	return nil
}

// IndexMembers 返回索引全部成员，按 score 再按成员字典序
func (m *Manager) IndexMembers(ctx context.Context, index string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	members, err := m.redis.ZRange(ctx, m.Key(index), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index range failed: %w", err)
	}
	return members, nil
}

// IndexRangeBelow 返回 score 严格小于 max 的成员
func (m *Manager) IndexRangeBelow(ctx context.Context, index string, max float64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	members, err := m.redis.ZRangeByScore(ctx, m.Key(index), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%f", max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index range failed: %w", err)
	}
	return members, nil
}

// =============================================================================
// 🏥 生命周期
// =============================================================================

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.redis.Ping(ctx).Err()
}

// Close 停止健康检查并关闭连接
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stop)
	m.logger.Info("closing redis manager")

	return m.redis.Close()
}

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil {
			m.logger.Error("redis health check failed", zap.Error(err))
		} else {
			m.logger.Debug("redis health check passed")
		}
		cancel()
	}
}

func (m *Manager) keys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = m.Key(k)
	}
	return out
}

// =============================================================================
// 🔧 错误
// =============================================================================

var (
	// ErrCacheMiss 键不存在
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed 管理器已关闭
	ErrClosed = errors.New("redis manager is closed")
)

// IsCacheMiss 判断是否为键不存在错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
