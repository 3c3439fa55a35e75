package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentorch/internal/tlsutil"
	"github.com/BaSui01/agentorch/types"
	"github.com/BaSui01/agentorch/workflow"
)

// 请求头
const (
	HeaderSessionID  = "X-Session-ID"
	HeaderWorkflowID = "X-Workflow-ID"
	HeaderNodeID     = "X-Node-ID"
	HeaderTraceID    = "X-Trace-ID"
)

// RetryPolicy 重试策略
type RetryPolicy struct {
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier" json:"multiplier"`
}

// DefaultRetryPolicy 默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

// Config Agent 客户端配置
type Config struct {
	// BaseURL Agent 网关地址，任务发往 {BaseURL}/agents/{id}/tasks
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Timeout 单次请求超时
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// RateLimit 每秒请求数，<=0 表示不限流
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	// RateBurst 令牌桶容量
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
	// Headers 附加到每个请求的固定头，如鉴权
	Headers map[string]string `yaml:"headers" json:"headers"`

	Retry   RetryPolicy   `yaml:"retry" json:"retry"`
	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:8090",
		Timeout:   30 * time.Second,
		RateLimit: 0,
		RateBurst: 10,
		Retry:     DefaultRetryPolicy(),
		Breaker:   DefaultBreakerConfig(),
	}
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBreakerListener 订阅熔断器状态变更
func WithBreakerListener(listener BreakerListener) Option {
	return func(c *Client) { c.listener = listener }
}

// WithClock 替换熔断器使用的时钟
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// RequestObserver 每次请求结束后调用，outcome 为 success 或小写错误码
type RequestObserver func(agentID, outcome string, duration time.Duration)

// WithRequestObserver 订阅请求结果，用于指标采集
func WithRequestObserver(observer RequestObserver) Option {
	return func(c *Client) { c.observer = observer }
}

// Client 通过 HTTP 将任务分派给远程 Agent，实现 workflow.AgentCommunicator
type Client struct {
	baseURL  *url.URL
	config   Config
	http     *http.Client
	limiter  *rate.Limiter
	breakers *BreakerRegistry
	listener BreakerListener
	observer RequestObserver
	now      func() time.Time
	logger   *zap.Logger
}

// New 创建 Agent 客户端
func New(config Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid agent base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid agent base url %q: scheme must be http or https", config.BaseURL)
	}
	if config.Retry.Multiplier < 1 {
		config.Retry.Multiplier = 1
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.RateBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL: base,
		config:  config,
		http:    tlsutil.HTTPClient(config.Timeout),
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
		logger:  logger.With(zap.String("component", "agent_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breakers = NewBreakerRegistry(config.Breaker, c.listener, logger)
	c.breakers.now = c.now
	return c, nil
}

// Breakers 返回按 Agent 划分的熔断器
func (c *Client) Breakers() *BreakerRegistry {
	return c.breakers
}

// SendTaskToAgent 发送任务并等待 Agent 响应。
// 可重试的失败按指数退避重试；连续失败会打开该 Agent 的熔断器。
func (c *Client) SendTaskToAgent(ctx context.Context, agentID string, task workflow.AgentTask) (workflow.AgentResponse, error) {
	if agentID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "agent id is required")
	}
	body, err := json.Marshal(task)
	if err != nil {
		return nil, types.Errorf(types.ErrInvalidRequest, "encode task for agent %s", agentID).
			WithCause(err).WithAgent(agentID)
	}

	breaker := c.breakers.Get(agentID)
	backoff := c.config.Retry.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.config.Retry.MaxRetries; attempt++ {
		if err := breaker.Allow(); err != nil {
			return nil, types.NewError(types.ErrServiceUnavailable, err.Error()).WithAgent(agentID)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			breaker.Release()
			return nil, types.Errorf(types.ErrTimeout, "rate limiter wait for agent %s", agentID).
				WithCause(err).WithAgent(agentID)
		}

		start := c.now()
		resp, retryAfter, err := c.do(ctx, agentID, body)
		c.observe(agentID, err, c.now().Sub(start))
		if err == nil {
			breaker.RecordSuccess()
			return resp, nil
		}
		lastErr = err

		if !types.IsRetryable(err) {
			if countsAsAgentFailure(err) {
				breaker.RecordFailure()
			} else {
				breaker.Release()
			}
			return nil, err
		}
		breaker.RecordFailure()

		if attempt == c.config.Retry.MaxRetries {
			break
		}
		wait := max(backoff, retryAfter)
		c.logger.Warn("agent request failed, retrying",
			zap.String("agent_id", agentID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, types.Errorf(types.ErrTimeout, "agent %s request cancelled", agentID).
				WithCause(ctx.Err()).WithAgent(agentID)
		case <-time.After(wait):
		}
		backoff = time.Duration(float64(backoff) * c.config.Retry.Multiplier)
		if c.config.Retry.MaxBackoff > 0 {
			backoff = min(backoff, c.config.Retry.MaxBackoff)
		}
	}
	return nil, lastErr
}

// do 执行一次请求，返回响应、服务端建议的重试间隔与错误
func (c *Client) do(ctx context.Context, agentID string, body []byte) (workflow.AgentResponse, time.Duration, error) {
	endpoint := c.baseURL.JoinPath("agents", agentID, "tasks")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, 0, types.Errorf(types.ErrInvalidRequest, "build request for agent %s", agentID).
			WithCause(err).WithAgent(agentID)
	}
	c.setHeaders(ctx, req)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, transportError(ctx, agentID, err)
	}
	defer httpResp.Body.Close()

	c.logger.Debug("agent responded",
		zap.String("agent_id", agentID),
		zap.Int("status", httpResp.StatusCode))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := readErrorMessage(httpResp.Body)
		return nil, retryAfter(httpResp.Header), mapHTTPError(httpResp.StatusCode, msg, agentID)
	}

	var out workflow.AgentResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, 0, types.Errorf(types.ErrUpstreamError, "agent %s returned an invalid response", agentID).
			WithCause(err).WithAgent(agentID)
	}
	if out == nil {
		out = workflow.AgentResponse{}
	}
	return out, 0, nil
}

func (c *Client) observe(agentID string, err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if code := types.GetErrorCode(err); code != "" {
			outcome = strings.ToLower(string(code))
		}
	}
	c.observer(agentID, outcome, d)
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if v, ok := types.SessionID(ctx); ok {
		req.Header.Set(HeaderSessionID, v)
	}
	if v, ok := types.WorkflowID(ctx); ok {
		req.Header.Set(HeaderWorkflowID, v)
	}
	if v, ok := types.NodeID(ctx); ok {
		req.Header.Set(HeaderNodeID, v)
	}
	if v, ok := types.TraceID(ctx); ok {
		req.Header.Set(HeaderTraceID, v)
	} else if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		req.Header.Set(HeaderTraceID, sc.TraceID().String())
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// mapHTTPError 将 HTTP 状态码映射为带重试标记的 types.Error
func mapHTTPError(status int, msg string, agentID string) *types.Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	msg = fmt.Sprintf("agent %s: %s", agentID, msg)

	var e *types.Error
	switch {
	case status == http.StatusTooManyRequests:
		e = types.NewError(types.ErrRateLimited, msg).WithRetryable(true)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e = types.NewError(types.ErrTimeout, msg).WithRetryable(true)
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		e = types.NewError(types.ErrServiceUnavailable, msg).WithRetryable(true)
	case status >= 500:
		e = types.NewError(types.ErrUpstreamError, msg).WithRetryable(true)
	default:
		e = types.NewError(types.ErrInvalidRequest, msg)
	}
	return e.WithHTTPStatus(status).WithAgent(agentID)
}

func transportError(ctx context.Context, agentID string, err error) *types.Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.Errorf(types.ErrTimeout, "agent %s request cancelled", agentID).
			WithCause(ctxErr).WithAgent(agentID)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.Errorf(types.ErrTimeout, "agent %s request timed out", agentID).
			WithCause(err).WithRetryable(true).WithAgent(agentID)
	}
	return types.Errorf(types.ErrUpstreamError, "agent %s unreachable", agentID).
		WithCause(err).WithRetryable(true).WithAgent(agentID)
}

// countsAsAgentFailure 客户端错误（4xx）与取消不计入熔断
func countsAsAgentFailure(err error) bool {
	e, ok := types.AsError(err)
	if !ok {
		return true
	}
	if e.HTTPStatus >= 400 && e.HTTPStatus < 500 {
		return false
	}
	return e.Code != types.ErrTimeout && e.Code != types.ErrInvalidRequest
}

// readErrorMessage 解析 {"error": "..."}、{"error": {"message": "..."}} 或 {"message": "..."}，否则回退到原始文本
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var resp struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &resp); err == nil {
		var s string
		if len(resp.Error) > 0 && json.Unmarshal(resp.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if len(resp.Error) > 0 && json.Unmarshal(resp.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		if resp.Message != "" {
			return resp.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

var _ workflow.AgentCommunicator = (*Client)(nil)
