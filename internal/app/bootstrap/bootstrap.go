package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	assemblyengine "concord/contexts/community-governance/assembly-engine"
	postgresadapter "concord/contexts/community-governance/assembly-engine/adapters/postgres"
	"concord/contexts/community-governance/assembly-engine/application/workers"
	"concord/internal/platform/config"
	"concord/internal/platform/db"
	"concord/internal/platform/httpserver"
	"concord/internal/platform/messaging"
	"concord/internal/platform/scheduling"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	cfg               config.Config
	postgres          *db.Postgres
	outboxRelay       workers.OutboxRelay
	deferredCloser    workers.DeferredCloser
	delegationExpirer workers.DelegationExpirer
	pollInterval      time.Duration
	logger            *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	timer := scheduling.NewTimer(logger)
	module := assemblyengine.NewModule(assemblyengine.Dependencies{
		Assemblies:     repo,
		Ballots:        repo,
		Delegations:    repo,
		Units:          repo,
		Identity:       repo,
		Outbox:         repo,
		Scheduler:      timer,
		Clock:          postgresadapter.SystemClock{},
		IDGen:          postgresadapter.UUIDGenerator{},
		SweepBatchSize: cfg.SweepBatchSize,
		Logger:         logger,
	})
	timer.Bind(module.Assemblies.CompleteDeferredClose)

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, repo, logger)
	if err != nil {
		return nil, err
	}

	timer := scheduling.NewTimer(logger)
	module := assemblyengine.NewModule(assemblyengine.Dependencies{
		Assemblies:     repo,
		Ballots:        repo,
		Delegations:    repo,
		Units:          repo,
		Identity:       repo,
		Outbox:         repo,
		Scheduler:      timer,
		Clock:          postgresadapter.SystemClock{},
		IDGen:          postgresadapter.UUIDGenerator{},
		SweepBatchSize: cfg.SweepBatchSize,
		Logger:         logger,
	})
	timer.Bind(module.Assemblies.CompleteDeferredClose)

	pollInterval := cfg.SweepInterval
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}

	return &WorkerApp{
		cfg:      cfg,
		postgres: pg,
		outboxRelay: workers.OutboxRelay{
			Outbox:    repo,
			Publisher: kafka,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: cfg.SweepBatchSize,
			Logger:    logger,
		},
		deferredCloser:    module.DeferredCloser,
		delegationExpirer: module.DelegationExpirer,
		pollInterval:      pollInterval,
		logger:            logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if w.cfg.EnableDeferredCloseWorker {
			if err := w.deferredCloser.RunOnce(ctx); err != nil {
				return err
			}
		}
		if w.cfg.EnableDelegationSweep {
			if err := w.delegationExpirer.RunOnce(ctx); err != nil {
				return err
			}
		}
		if w.cfg.EnableOutboxRelay {
			if err := w.outboxRelay.RunOnce(ctx); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
