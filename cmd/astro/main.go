package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/astro/internal/api"
	"github.com/nidhogg/astro/internal/config"
	"github.com/nidhogg/astro/internal/orchestrator"
	"github.com/nidhogg/astro/internal/provider"
	"github.com/nidhogg/astro/internal/react"
	"github.com/nidhogg/astro/internal/sandbox"
	"github.com/nidhogg/astro/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Astro...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/astro.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Build reasoning backends
	var candidates []provider.Provider
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
		}
		switch pc.Type {
		case "anthropic":
			candidates = append(candidates, provider.NewAnthropicProvider(provCfg, logger))
		case "openai":
			candidates = append(candidates, provider.NewOpenAIProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	var gwOpts []provider.GatewayOption
	if cfg.Gateway.Retries > 0 {
		gwOpts = append(gwOpts, provider.WithRetries(cfg.Gateway.Retries))
	}
	if cfg.Gateway.RetryDelay > 0 {
		gwOpts = append(gwOpts, provider.WithRetryDelay(cfg.Gateway.RetryDelay.Duration()))
	}

	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 30*time.Second)
	gateway, err := provider.NewGatewayWithFallback(probeCtx, candidates, logger, gwOpts...)
	cancelProbe()
	if err != nil {
		logger.Fatal("no reasoning backend available", zap.Error(err))
	}

	// Sandbox and reason-act loop
	box, err := sandbox.New(sandbox.Config{
		WorkDir:        cfg.Sandbox.WorkDir,
		CommandTimeout: cfg.Sandbox.CommandTimeout.Duration(),
		MaxOutputChars: cfg.Sandbox.MaxOutputChars,
	}, logger)
	if err != nil {
		logger.Fatal("sandbox init failed", zap.Error(err))
	}

	var loopOpts []react.LoopOption
	if cfg.Sandbox.MaxSteps > 0 {
		loopOpts = append(loopOpts, react.WithMaxSteps(cfg.Sandbox.MaxSteps))
	}
	loop := react.NewLoop(gateway, box, logger, loopOpts...)

	// Orchestrator and executors
	var orchOpts []orchestrator.Option
	if cfg.Orchestrator.TaskTimeout > 0 {
		orchOpts = append(orchOpts, orchestrator.WithTaskTimeout(cfg.Orchestrator.TaskTimeout.Duration()))
	}
	if cfg.Orchestrator.MaxParallel > 0 {
		orchOpts = append(orchOpts, orchestrator.WithParallelLimit(cfg.Orchestrator.MaxParallel))
	}
	orch := orchestrator.New(cfg.Orchestrator.PoolSize, logger, orchOpts...)
	for _, ac := range cfg.Agents {
		orch.RegisterExecutor(orchestrator.NewSubAgent(orchestrator.SubAgentConfig{
			Name:          ac.Name,
			AgentType:     ac.AgentType,
			SystemPrompt:  ac.SystemPrompt,
			Tools:         ac.Tools,
			MaxConcurrent: ac.MaxConcurrent,
		}, gateway, loop, logger))
	}

	// Task journal
	var journal *store.Store
	if cfg.Store.Path != "" {
		j, storeErr := store.Open(cfg.Store.Path)
		if storeErr != nil {
			logger.Warn("journal unavailable, running without persistence", zap.Error(storeErr))
		} else {
			journal = j
			orch.OnTaskDone(func(snap *orchestrator.TaskSnapshot) {
				if err := journal.SaveTask(store.RecordFromSnapshot(snap)); err != nil {
					logger.Warn("journal write failed", zap.String("task_id", snap.ID), zap.Error(err))
				}
			})
		}
	}

	// Build HTTP handler
	handler := api.NewHandler(orch, journal, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Astro listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Astro...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if journal != nil {
		journal.Close()
	}
}
