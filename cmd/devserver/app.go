package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AltairaLabs/devserver-mcp/internal/backend"
	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/detect"
	"github.com/AltairaLabs/devserver-mcp/internal/gateway"
	"github.com/AltairaLabs/devserver-mcp/internal/logstore"
	"github.com/AltairaLabs/devserver-mcp/internal/ports"
	"github.com/AltairaLabs/devserver-mcp/internal/session"
	"github.com/AltairaLabs/devserver-mcp/internal/storage/memory"
)

const (
	daemonOwner      = "devserver"
	preflightTimeout = 5 * time.Second
)

// app holds the wired components of a running daemon
type app struct {
	cfg          *config.Config
	ports        *ports.Registry
	logs         *logstore.Store
	orchestrator *session.Orchestrator
	gateway      *gateway.Gateway
}

// loadConfig reads the config file and applies environment overrides
func loadConfig(path string, getenv func(string) string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bandsFromConfig(cfg *config.Config) []ports.Band {
	bands := make([]ports.Band, 0, len(cfg.Ports))
	for _, b := range cfg.Ports {
		bands = append(bands, ports.Band{Category: b.Category, Start: b.Start, End: b.End})
	}
	return bands
}

// buildRuntimes registers the process runtime and, when usable, docker
func buildRuntimes(ctx context.Context, cfg *config.Config, logger *slog.Logger) *backend.Registry {
	runtimes := []backend.Runtime{backend.NewProcessRuntime(logger)}

	docker := backend.NewDockerRuntime(cfg.Docker.Images, logger)
	if cfg.Docker.Preflight {
		pctx, cancel := context.WithTimeout(ctx, preflightTimeout)
		err := docker.Preflight(pctx)
		cancel()
		if err != nil {
			logger.Warn("docker runtime disabled", "error", err)
			return backend.NewRegistry(runtimes...)
		}
	}
	runtimes = append(runtimes, docker)
	return backend.NewRegistry(runtimes...)
}

// newApp wires the orchestrator and gateway from cfg
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...ports.Option) (*app, error) {
	registry, err := ports.NewRegistry(bandsFromConfig(cfg), opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid port bands: %w", err)
	}

	// Keep sessions off the daemon's own listeners.
	for _, p := range []int{cfg.Server.GRPCPort, cfg.Server.APIPort} {
		band, ok := registry.BandFor(p)
		if !ok {
			continue
		}
		if _, err := registry.Allocate(band.Category, p, daemonOwner); err != nil {
			logger.Warn("failed to reserve daemon port", "port", p, "error", err)
		}
	}

	logs := logstore.NewStore(cfg.Log.BufferCapacity)
	store := memory.NewSessionStore()
	runtimes := buildRuntimes(ctx, cfg, logger)

	orchestrator := session.NewOrchestrator(
		detect.DefaultDetector(),
		registry,
		runtimes,
		logs,
		store,
		session.OptionsFromConfig(cfg),
		logger,
	)

	gw := gateway.New(gateway.Config{
		Name:         config.ServerName,
		Version:      version,
		LogCapacity:  cfg.Log.BufferCapacity,
		DefaultLimit: cfg.Log.DefaultTail,
	}, orchestrator, logs, gateway.NewAuditLogger(logger), logger)

	logger.Info("Orchestrator initialized",
		"runtimes", runtimes.Names(),
		"bands", len(cfg.Ports),
		"log_capacity", logs.Capacity())

	return &app{
		cfg:          cfg,
		ports:        registry,
		logs:         logs,
		orchestrator: orchestrator,
		gateway:      gw,
	}, nil
}

// runCleanup evicts completed sessions past retention until ctx ends
func (a *app) runCleanup(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(a.cfg.Session.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.orchestrator.CleanupStale(a.cfg.Session.Retention); n > 0 {
				logger.Debug("cleanup sweep finished", "evicted", n)
			}
		}
	}
}
