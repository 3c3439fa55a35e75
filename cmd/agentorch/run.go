package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentorch/agentclient"
	"github.com/BaSui01/agentorch/config"
	"github.com/BaSui01/agentorch/internal/cache"
	"github.com/BaSui01/agentorch/internal/metrics"
	"github.com/BaSui01/agentorch/internal/server"
	"github.com/BaSui01/agentorch/internal/telemetry"
	"github.com/BaSui01/agentorch/workflow"
	"github.com/BaSui01/agentorch/workflow/fsstore"
	"github.com/BaSui01/agentorch/workflow/redisstore"
)

// stringList 收集可重复的命令行参数
type stringList []string

func (s *stringList) String() string { return fmt.Sprint(*s) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

func runCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	workflowPath := fs.String("workflow", "", "Workflow definition file")
	workflowID := fs.String("workflow-id", "", "Run a workflow already stored in engine.workflow_dir")
	timeout := fs.Duration("timeout", 0, "Abort execution after this long")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	var inputs stringList
	fs.Var(&inputs, "input", "User input (repeatable)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if (*workflowPath == "") == (*workflowID == "") {
		fmt.Fprintln(stderr, "run: exactly one of --workflow or --workflow-id is required")
		return exitUsage
	}
	if len(inputs) == 0 {
		inputs = stringList{""}
	}

	cfg, err := config.NewLoader().
		WithConfigPath(*configPath).
		WithValidator((*config.Config).Validate).
		Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	var def *workflow.WorkflowDefinition
	if *workflowPath != "" {
		if def, err = workflow.LoadDefinitionFile(*workflowPath); err != nil {
			fmt.Fprintf(stderr, "Failed to load workflow: %v\n", err)
			return exitFailure
		}
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	registry := prometheus.NewRegistry()
	if *metricsAddr != "" {
		srv, err := startMetricsServer(*metricsAddr, registry, logger)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to start metrics server: %v\n", err)
			return exitFailure
		}
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	engine, closeEngine, err := buildEngine(ctx, cfg, registry, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to build engine: %v\n", err)
		return exitFailure
	}
	defer closeEngine()

	register := def != nil
	if !register {
		if def, err = engine.GetWorkflow(ctx, *workflowID); err != nil {
			fmt.Fprintf(stderr, "Failed to load workflow: %v\n", err)
			return exitFailure
		}
	}

	results, err := executeInputs(ctx, engine, def, inputs, register)
	if err != nil {
		fmt.Fprintf(stderr, "Execution failed: %v\n", err)
		return exitFailure
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	var payload any = results
	if len(results) == 1 {
		payload = results[0]
	}
	if err := enc.Encode(payload); err != nil {
		fmt.Fprintf(stderr, "Failed to write result: %v\n", err)
		return exitFailure
	}

	for _, r := range results {
		if r.Status != workflow.SessionStatusCompleted {
			return exitFailure
		}
	}
	return exitOK
}

// executeInputs 为每个输入创建会话并并发执行
func executeInputs(ctx context.Context, engine *workflow.Engine, def *workflow.WorkflowDefinition, inputs []string, register bool) ([]*workflow.ExecutionResult, error) {
	if register {
		if err := engine.RegisterWorkflow(ctx, def); err != nil {
			return nil, err
		}
	}
	ids := make([]string, 0, len(inputs))
	for _, input := range inputs {
		id, err := engine.CreateSession(ctx, def.ID, input)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 1 {
		res, err := engine.ExecuteWorkflow(ctx, ids[0])
		if err != nil {
			return nil, err
		}
		return []*workflow.ExecutionResult{res}, nil
	}
	return engine.ExecuteSessions(ctx, ids)
}

// =============================================================================
// 🔌 组件装配
// =============================================================================

// buildEngine 按配置装配引擎，返回释放外部连接的函数
func buildEngine(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*workflow.Engine, func(), error) {
	collector := metrics.NewCollectorWith(reg, "agentorch", logger)

	client, err := agentclient.New(agentClientConfig(cfg.AgentClient), logger,
		agentclient.WithRequestObserver(collector.RecordAgentRequest),
		agentclient.WithBreakerListener(func(e agentclient.BreakerEvent) {
			collector.RecordBreakerTransition(e.AgentID, e.OldState.String(), e.NewState.String())
		}),
	)
	if err != nil {
		return nil, nil, err
	}

	opts := []workflow.EngineOption{
		workflow.WithLogger(logger),
		workflow.WithCommunicator(client),
		workflow.WithStrictValidation(cfg.Engine.StrictValidation),
		workflow.WithSessionTTL(cfg.Engine.SessionTTL),
		workflow.WithMaxConcurrentSessions(cfg.Engine.MaxConcurrentSessions),
		workflow.WithRunnerOptions(
			workflow.WithMaxIterations(cfg.Engine.MaxIterations),
			workflow.WithMetrics(collector),
		),
	}

	closeFn := func() {}
	if cfg.Engine.Store == config.StoreRedis {
		manager, err := cache.NewManager(cache.Config{
			Addr:                cfg.Redis.Addr,
			Password:            cfg.Redis.Password,
			DB:                  cfg.Redis.DB,
			KeyPrefix:           cfg.Redis.KeyPrefix,
			DefaultTTL:          cfg.Engine.SessionTTL,
			PoolSize:            cfg.Redis.PoolSize,
			MinIdleConns:        cfg.Redis.MinIdleConns,
			HealthCheckInterval: 30 * time.Second,
			TLS:                 cfg.Redis.TLS,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		// Sessions outlive the reap cutoff by one interval so a reaper in
		// another process always sees them first.
		opts = append(opts,
			workflow.WithSessionStore(redisstore.NewSessionStore(manager, cfg.Engine.SessionTTL+cfg.Engine.ReapInterval, logger)),
			workflow.WithWorkflowStore(redisstore.NewWorkflowStore(manager)),
		)
		closeFn = func() {
			if err := manager.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		}
	}

	if cfg.Engine.WorkflowDir != "" {
		store, err := fsstore.New(ctx, cfg.Engine.WorkflowDir, logger)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		opts = append(opts, workflow.WithWorkflowStore(store))
	}

	engine := workflow.NewEngine(opts...)
	engine.StartReaper(ctx, cfg.Engine.ReapInterval)
	return engine, closeFn, nil
}

func agentClientConfig(c config.AgentClientConfig) agentclient.Config {
	out := agentclient.DefaultConfig()
	out.BaseURL = c.BaseURL
	out.Timeout = c.Timeout
	out.RateLimit = c.RateLimitRPS
	out.RateBurst = c.RateLimitBurst
	out.Headers = c.Headers
	out.Retry.MaxRetries = c.MaxRetries
	out.Retry.InitialBackoff = c.RetryDelay
	out.Retry.MaxBackoff = c.MaxRetryDelay
	out.Breaker.FailureThreshold = c.BreakerFailureThreshold
	out.Breaker.RecoveryTimeout = c.BreakerRecoveryTimeout
	return out
}

func metricsHandler(gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return Chain(mux, Recovery(logger), ScrapeLogger(logger))
}

func startMetricsServer(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) (*server.Manager, error) {
	cfg := server.DefaultConfig()
	cfg.Addr = addr
	srv := server.NewManager(metricsHandler(gatherer, logger), cfg, logger)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	go func() {
		if err, ok := <-srv.Errors(); ok && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv, nil
}
