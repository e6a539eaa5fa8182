// Package app wires configuration into a ready orchestrator for the
// binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/outreach/internal/api/handler"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/integration"
	"github.com/timmy/outreach/internal/lock"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/metrics"
	"github.com/timmy/outreach/internal/repository"
	"github.com/timmy/outreach/internal/service"
	"github.com/timmy/outreach/internal/storage"
	"gorm.io/gorm"
)

// Options tweak the wiring per binary.
type Options struct {
	// DryRun keeps run state in memory and replaces every stage executor
	// with one that only logs the contact.
	DryRun bool
	// Metrics, when set, receives run events.
	Metrics *metrics.Metrics
}

// App is the wired object graph.
type App struct {
	Orchestrator *service.Orchestrator
	Runs         *repository.CampaignRunRepository
	Contacts     *repository.ContactRepository
	Archive      *storage.RunArchive
	Health       map[string]handler.Pinger

	db    *gorm.DB
	redis *redis.Client
}

// Build opens the database, the claim backend and the archive, and
// assembles the orchestrator.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &App{
		db:       db,
		Runs:     repository.NewCampaignRunRepository(db),
		Contacts: repository.NewContactRepository(db),
		Health:   map[string]handler.Pinger{},
	}
	if sqlDB, err := db.DB(); err == nil {
		a.Health["database"] = sqlDB
	}

	locker, err := a.locker(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var archiver service.RunArchiver
	if cfg.Storage.Enabled && !opts.DryRun {
		store, err := storage.OpenS3(ctx, &cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize run archive: %w", err)
		}
		a.Archive = storage.NewRunArchive(store, cfg.Storage.Prefix)
		archiver = a.Archive
	}

	var ledger service.RunLedger = a.Runs
	executors := integration.NewExecutors(&cfg.Integrations, a.Contacts)
	if opts.DryRun {
		ledger = repository.NewMemoryLedger()
		locker = lock.NewMemory()
		executors = dryRunExecutors()
	}

	var recorder service.RunRecorder
	if opts.Metrics != nil {
		recorder = opts.Metrics
	}

	a.Orchestrator = service.NewOrchestrator(service.OrchestratorDeps{
		Ledger:    ledger,
		Contacts:  a.Contacts,
		Campaigns: a.Contacts,
		Executors: executors,
		Locker:    locker,
		Archiver:  archiver,
		Recorder:  recorder,
		Logger:    logger.GetDefault(),
	}, &service.OrchestratorConfig{
		Workers:    cfg.Runner.Workers,
		BatchSize:  cfg.Runner.BatchSize,
		StaleAfter: cfg.Runner.StaleAfter,
	})
	return a, nil
}

func (a *App) locker(ctx context.Context, cfg *config.Config) (lock.Locker, error) {
	switch cfg.Runner.ClaimBackend {
	case config.ClaimBackendRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Health["redis"] = redisPinger{a.redis}
		return lock.NewRedis(a.redis), nil
	case config.ClaimBackendMemory:
		logger.Warn("Using in-process run claims; do not run more than one replica")
		return lock.NewMemory(), nil
	default:
		return repository.NewClaimRepository(a.db), nil
	}
}

// Close releases connections.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func dryRunExecutors() service.Executors {
	dry := func(stage domain.Stage) service.StageExecutor {
		return service.StageExecutorFunc(func(ctx context.Context, contact domain.Contact, _ domain.StageParams) error {
			logger.FromContext(ctx).WithFields(logger.Fields{
				logger.FieldStage: string(stage),
				"contact_id":      contact.ID,
			}).Info("Dry run: skipped executor call")
			return nil
		})
	}
	return service.Executors{
		EmailFinder:   dry(domain.StageEmailFinding),
		Personalizer:  dry(domain.StageInserts),
		DraftComposer: dry(domain.StageDrafts),
		Sender:        dry(domain.StageSending),
	}
}
