// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/opd-ai/go-rts/pkg/api"
	"github.com/opd-ai/go-rts/pkg/config"
	"github.com/opd-ai/go-rts/pkg/engine"
	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/health"
	"github.com/opd-ai/go-rts/pkg/logging"
	"github.com/opd-ai/go-rts/pkg/metrics"
	"github.com/opd-ai/go-rts/pkg/network"
	"github.com/opd-ai/go-rts/pkg/render"
	"github.com/opd-ai/go-rts/pkg/resource"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	createDefault := flag.Bool("default", false, "Create default configuration file")
	renderMode := flag.String("render", "", "Debug view: 'terminal', 'null' or empty for none")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		logging.NewLogger().Error(context.Background(), "Failed to load .env", err)
		os.Exit(1)
	}
	logger := logging.NewLogger()
	ctx := logging.WithCorrelationID(context.Background(), logging.GenerateCorrelationID())

	if *createDefault {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err, "config_path", *configPath)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file", "config_path", *configPath)
		return
	}

	env, err := config.LoadConfigFromEnv()
	if err != nil {
		logger.Error(ctx, "Invalid environment configuration", err)
		os.Exit(1)
	}

	cfg, err := loadSimulationConfig(ctx, logger, *configPath)
	if err != nil {
		logger.Error(ctx, "Failed to load configuration", err, "config_path", *configPath)
		os.Exit(1)
	}
	if err := config.ApplyEnvironmentOverrides(cfg); err != nil {
		logger.Error(ctx, "Failed to apply environment configuration", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	game, err := engine.NewGame(cfg, engine.WithLogger(logger), engine.WithMetrics(m))
	if err != nil {
		logger.Error(ctx, "Failed to create simulation", err)
		os.Exit(1)
	}
	if err := game.InitializeResourceManager(env); err != nil {
		logger.Error(ctx, "Failed to start resource manager", err)
		os.Exit(1)
	}
	tasks := game.ResourceManager

	hub := network.NewHub(game, tasks, network.HubConfig{
		MaxClients:    cfg.NetworkConfig.MaxClients,
		TicksPerState: cfg.NetworkConfig.TicksPerState,
		WriteTimeout:  env.WriteTimeout,
	}, logger, m)

	spawnLimiter := network.NewIPRateLimiter(network.RateLimitConfig{
		RequestsPerSecond: cfg.NetworkConfig.SpawnRateLimit,
		Burst:             cfg.NetworkConfig.SpawnBurst,
	}, m)

	var listenAddr atomic.Value
	listenAddr.Store("")

	checker := health.NewHealthChecker()
	checker.AddCheck(health.NewSimulationHealthCheck(game.Running, game.Tick, 5*time.Second))
	checker.AddCheck(health.NewIndexHealthCheck(game.CheckIndex))
	checker.AddCheck(resource.NewResourceHealthCheck(tasks))
	checker.AddCheck(health.NewNetworkHealthCheck(func() string { return listenAddr.Load().(string) }))

	router := api.NewRouter(api.RouterConfig{
		Game:         game,
		Hub:          hub,
		Health:       checker,
		Metrics:      m,
		Gatherer:     registry,
		Logger:       logger,
		SpawnLimiter: spawnLimiter,
	})

	addr := cfg.NetworkConfig.ServerAddress
	if addr == "" {
		addr = net.JoinHostPort(env.ServerAddr, "8080")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error(ctx, "Failed to listen", err, "address", addr)
		os.Exit(1)
	}
	listenAddr.Store(listener.Addr().String())

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  env.ReadTimeout,
		WriteTimeout: env.WriteTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mustGo := func(name string, fn func(context.Context)) {
		if err := tasks.Go(runCtx, name, fn); err != nil {
			logger.Error(ctx, "Failed to start task", err, "task", name)
			os.Exit(1)
		}
	}

	mustGo("tick-loop", func(ctx context.Context) {
		if err := game.Run(ctx); err != nil {
			logger.Error(ctx, "Simulation stopped", err)
		}
	})
	mustGo("rate-limit-cleanup", func(ctx context.Context) {
		ticker := time.NewTicker(spawnLimiter.Interval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := spawnLimiter.Cleanup(); n > 0 {
					logger.Debug(ctx, "Pruned idle rate limiters", "count", n)
				}
			}
		}
	})
	if *renderMode != "" {
		view := debugView(*renderMode, logger, game)
		mustGo("debug-view", func(ctx context.Context) {
			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					game.Render(view)
				}
			}
		})
	}
	mustGo("http-server", func(context.Context) {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "HTTP server failed", err)
			stop()
		}
	})

	logger.Info(ctx, "Server started",
		"address", listener.Addr().String(),
		"tick_rate", cfg.Rules.TickRate,
		"max_clients", cfg.NetworkConfig.MaxClients,
	)

	<-runCtx.Done()
	logger.Info(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.ShutdownTimeout)
	defer cancel()

	listenAddr.Store("")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown failed", err)
	}
	hub.Close()
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Resource manager shutdown failed", err)
	}
	logger.Info(ctx, "Server stopped", "final_tick", game.Tick())
}

func loadSimulationConfig(ctx context.Context, logger *logging.Logger, path string) (*config.SimulationConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Info(ctx, "Configuration file not found, using default configuration", "config_path", path)
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func debugView(mode string, logger *logging.Logger, game *engine.Game) entity.Renderer {
	if mode == "terminal" {
		r := render.NewTerminalRenderer(os.Stdout, 80, 40, 1)
		r.FitWorld(game.GetState().World)
		return r
	}
	return render.NewNullRenderer(logger)
}
