package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dmmcquay/stockfish-mcp/internal/cache"
	"github.com/dmmcquay/stockfish-mcp/internal/config"
	"github.com/dmmcquay/stockfish-mcp/internal/engine"
	"github.com/dmmcquay/stockfish-mcp/internal/health"
	"github.com/dmmcquay/stockfish-mcp/internal/logging"
	mcptools "github.com/dmmcquay/stockfish-mcp/internal/mcp"
	"github.com/dmmcquay/stockfish-mcp/internal/metrics"
	"github.com/dmmcquay/stockfish-mcp/internal/ratelimit"
	"github.com/dmmcquay/stockfish-mcp/internal/retry"
	httpserver "github.com/dmmcquay/stockfish-mcp/internal/server"
	"github.com/dmmcquay/stockfish-mcp/internal/shutdown"
)

var (
	// Version information injected at build time.
	GitCommit string = "unknown"
	BuildTime string = "unknown"
)

func main() {
	// Parse command line flags
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	// Handle version flag
	if showVersion {
		fmt.Printf("stockfish-mcp version 0.1.0\n")
		fmt.Printf("Git commit: %s\n", GitCommit)
		fmt.Printf("Build time: %s\n", BuildTime)
		os.Exit(0)
	}

	// Load configuration
	configPath := config.GetConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	logConfig := &logging.Config{
		Level:   cfg.Logging.Level,
		Format:  logging.LogFormat(cfg.Logging.Format),
		Service: cfg.Server.Name,
		Version: cfg.Server.Version,
		Prefix:  cfg.Logging.Prefix,
	}
	logger := logging.NewLoggerFromConfig(logConfig)
	logger.Info("Starting Stockfish MCP Server",
		"version", cfg.Server.Version, "commit", GitCommit, "built", BuildTime)
	logger.Info("Using engine binary", "path", cfg.Engine.BinaryPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the engine process, retrying transient startup failures
	backend := engine.NewUCIBackend(&cfg.Engine, logger)
	if err := retry.EngineStartPolicy().Do(ctx, logger, "engine start", func(ctx context.Context) error {
		return backend.Start(ctx)
	}); err != nil {
		logger.Error("Failed to start engine", "error", err)
		os.Exit(1)
	}

	// Build the move-analysis facade around the backend
	eng := engine.New(backend, logger)
	eng.SetMetrics(metrics.NewPrometheusCollector())
	if err := eng.Initialize(cfg.Engine.HashSizeMB, cfg.Engine.MaxCandidates); err != nil {
		logger.Error("Failed to initialize engine", "error", err)
		_ = backend.Close()
		os.Exit(1)
	}

	// Create metrics collector and rate limiter
	metricsCollector := metrics.NewCollector()
	rateLimiter := ratelimit.NewLimiter(&cfg.RateLimit, logger)

	// Result cache
	resultCache := cache.NewManager(&cfg.Cache, logger)

	// Set up health checker with an engine ping
	healthChecker := health.NewChecker(logger, cfg.Server.Version, GitCommit)
	healthChecker.RegisterCheck("engine", func(ctx context.Context) error {
		return backend.Ping(ctx)
	})

	// Start HTTP health check and metrics server
	healthAddr := os.Getenv("STOCKFISH_HEALTH_ADDR")
	if healthAddr == "" {
		healthAddr = cfg.Server.HealthAddr
	}
	httpServer := httpserver.NewHTTPServer(healthAddr, logger, healthChecker)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start health check server", "error", err)
		_ = backend.Close()
		os.Exit(1)
	}
	logger.Info("Health check server started", "addr", healthAddr)

	// Hooks run in reverse order: the HTTP surface stops before the engine
	// process it reports on.
	shutdownMgr := shutdown.NewManager(logger)
	shutdownMgr.Register("engine", func(ctx context.Context) error {
		return backend.Close()
	})
	shutdownMgr.Register("ratelimit", func(ctx context.Context) error {
		return rateLimiter.Close()
	})
	shutdownMgr.Register("http", func(ctx context.Context) error {
		return httpServer.Stop(ctx)
	})
	shutdownMgr.HandleSignals()

	go func() {
		<-shutdownMgr.Done()
		cancel()
	}()

	// Create MCP server
	mcpServer := server.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		server.WithLogging(),
	)

	// Create middleware
	middleware := mcptools.NewMiddleware(logger, metricsCollector, rateLimiter)

	// Create and register tools
	toolsHandler := mcptools.NewToolsHandler(eng, &cfg.Engine, logger)
	toolsHandler.SetMiddleware(middleware)
	toolsHandler.SetCache(resultCache)
	toolsHandler.RegisterTools(mcpServer)

	logger.Info("Stockfish MCP Server ready")

	done := make(chan error, 1)
	go func() {
		done <- server.ServeStdio(mcpServer)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Server error", "error", err)
		}
		shutdownMgr.Shutdown(10 * time.Second)
	case <-ctx.Done():
		logger.Info("Server stopped by signal")
	}
}
