package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/nexus/internal/api"
	"github.com/ShayCichocki/nexus/internal/config"
	"github.com/ShayCichocki/nexus/internal/coord"
	iexec "github.com/ShayCichocki/nexus/internal/exec"
	"github.com/ShayCichocki/nexus/internal/metrics"
	"github.com/ShayCichocki/nexus/internal/orchestrator"
	"github.com/ShayCichocki/nexus/internal/plan"
	"github.com/ShayCichocki/nexus/internal/router"
	"github.com/ShayCichocki/nexus/internal/worker"
)

// app holds the components of one nexus process.
type app struct {
	engine   *orchestrator.Engine
	store    *coord.Store
	metrics  *metrics.Collector
	workers  *worker.Registry
	profiles *router.Registry
	stop     context.CancelFunc
}

// buildCompleter creates the text-completion client for the configured provider.
func buildCompleter(cfg *config.Config) (*api.Client, error) {
	key, err := config.ResolveAPIKey(cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAPIKey(key.Value); err != nil {
		return nil, fmt.Errorf("%w (from %s)", err, key.Source)
	}

	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.LLM.Model),
		APIKey:        key.Value,
		UseAWSBedrock: cfg.LLM.Provider == config.ProviderBedrock,
		AWSRegion:     cfg.LLM.AWSRegion,
		AWSProfile:    cfg.LLM.AWSProfile,
		Timeout:       cfg.LLM.Timeout,
		BaseURL:       cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}

// openBackend returns the configured coordination backend. Memory mode
// returns a nil backend.
func openBackend(cfg *config.Config) (coord.Backend, error) {
	switch cfg.Coordination.Backend {
	case config.BackendRedis:
		b, err := coord.NewRedisBackend(cfg.Coordination.RedisURL)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendSQLite:
		b, err := coord.OpenSQLite(cfg.Coordination.SQLitePath)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, nil
	}
}

// openStore opens the shared session store. An unreachable backend degrades
// to memory mode with a warning.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Collector) (*coord.Store, error) {
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Coordination.Backend, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return coord.Open(pingCtx, backend,
		coord.WithSessionTTL(cfg.Coordination.SessionTTL),
		coord.WithChannel(cfg.Coordination.Channel),
		coord.WithLogger(logger),
		coord.WithDegradeHook(m.RecordStoreDegraded),
	), nil
}

// loadProfiles returns the capability profiles: the built-in set, replaced
// by profiles_file when configured. The file is watched until ctx is done.
func loadProfiles(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*router.Registry, error) {
	profiles := router.NewRegistry(router.DefaultProfiles()...)

	path := cfg.Orchestrator.ProfilesFile
	if path == "" {
		return profiles, nil
	}
	if err := profiles.LoadFile(path); err != nil {
		return nil, err
	}
	err := profiles.Watch(ctx, path, func(err error) {
		if err != nil {
			logger.Warn("profile reload failed, keeping previous profiles", "path", path, "error", err)
			return
		}
		logger.Info("profiles reloaded", "path", path, "count", profiles.Len())
	})
	if err != nil {
		return nil, fmt.Errorf("watch profiles: %w", err)
	}
	return profiles, nil
}

// buildWorkers registers an LLM worker per profile plus generic, and the
// command worker when allowed.
func buildWorkers(cfg *config.Config, completer api.Completer, profiles *router.Registry) *worker.Registry {
	persona := func(workerType string) string {
		if p, ok := profiles.Get(workerType); ok {
			return p.Description
		}
		return ""
	}

	reg := worker.NewRegistry()
	llm := worker.LLMFactory(completer, persona)
	reg.Register(worker.GenericType, llm)
	for _, p := range profiles.Profiles() {
		if p.WorkerType == worker.CommandType {
			continue
		}
		reg.Register(p.WorkerType, llm)
	}

	if cfg.Workers.AllowCommand {
		runner := iexec.NewRunner(cfg.Workers.MaxOutputBytes)
		reg.Register(worker.CommandType, worker.CommandFactory(runner, cfg.Workers.CommandDir))
		if _, ok := profiles.Get(worker.CommandType); !ok {
			profiles.Register(router.CapabilityProfile{
				WorkerType:  worker.CommandType,
				Description: "runs the task description as a shell command",
				Category:    "terminal",
				IdealTasks:  []string{"run", "build", "test", "shell", "command", "script"},
				Skills:      []string{"shell"},
			})
		}
	}
	return reg
}

// buildApp wires every component from cfg.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	completer, err := buildCompleter(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.NewCollector(nil)

	ctx, stop := context.WithCancel(ctx)
	profiles, err := loadProfiles(ctx, cfg, logger)
	if err != nil {
		stop()
		return nil, err
	}

	store, err := openStore(ctx, cfg, logger, m)
	if err != nil {
		stop()
		return nil, err
	}
	if store.Degraded() {
		printStatus("⚠", fmt.Sprintf("%s backend unreachable, using in-memory state", cfg.Coordination.Backend), colorWarn)
	}

	workers := buildWorkers(cfg, completer, profiles)
	pool := worker.NewPool(workers, worker.WithTaskTimeout(cfg.Orchestrator.TaskTimeout))

	rt := router.New(completer,
		router.WithTimeout(cfg.Orchestrator.RoutingTimeout),
		router.WithLogger(logger),
		router.WithFallbackHook(m.RecordRoutingFallback),
	)
	planner := plan.NewTranslator(completer,
		plan.WithWorkerTypes(workers.Types),
		plan.WithLogger(logger),
	)

	engine, err := orchestrator.New(
		orchestrator.RequiredConfig{
			Planner: planner,
			Store:   store,
			Workers: pool,
		},
		orchestrator.WithMaxConcurrentTasks(cfg.Orchestrator.MaxConcurrentTasks),
		orchestrator.WithRouter(rt),
		orchestrator.WithProfiles(profiles),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(m),
	)
	if err != nil {
		stop()
		return nil, errors.Join(err, store.Close())
	}

	return &app{
		engine:   engine,
		store:    store,
		metrics:  m,
		workers:  workers,
		profiles: profiles,
		stop:     stop,
	}, nil
}

// Close shuts the engine down and stops background watchers.
func (a *app) Close() error {
	defer a.stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.engine.Shutdown(ctx)
}

// serveMetrics exposes the collector when an address is configured.
func (a *app) serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, addr); err != nil {
			logger.Warn("metrics endpoint stopped", "addr", addr, "error", err)
		}
	}()
}
