package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gym-retention/platform/internal/action"
	"github.com/gym-retention/platform/internal/member"
	"github.com/gym-retention/platform/internal/pipeline"
	"github.com/gym-retention/platform/internal/risk"
	"github.com/gym-retention/platform/internal/settings"
	"github.com/gym-retention/platform/internal/shared/config"
	"github.com/gym-retention/platform/internal/shared/database"
	"github.com/gym-retention/platform/internal/shared/events"
	"github.com/gym-retention/platform/internal/shared/logger"
	"github.com/gym-retention/platform/internal/syncjob"
	"github.com/gym-retention/platform/internal/syncjob/pacto"
)

// App holds all application dependencies
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *database.DB
	Bus       *events.Bus
	Publisher events.Publisher

	Settings   *settings.Service
	Members    *member.Repository
	Actions    *action.Repository
	SyncLogs   *syncjob.Repository
	Calculator *risk.Calculator
	Generator  *action.Generator
	Syncer     *syncjob.Syncer
	Pipeline   *pipeline.Runner
}

// newApp loads configuration, connects to Postgres and, when enabled,
// KurrentDB, and wires the batch services.
func newApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Server, cfg.Log)
	if err != nil {
		return nil, err
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("database not available: %w", err)
	}

	app := &App{Config: cfg, Logger: log, DB: db, Publisher: events.Discard}

	if cfg.KurrentDB.Enabled {
		bus, err := events.NewBus(cfg.KurrentDB)
		if err != nil {
			log.Warn("KurrentDB not available, running without event streaming", zap.Error(err))
		} else {
			app.Bus = bus
			app.Publisher = bus
			log.Info("KurrentDB event bus initialized",
				zap.String("host", cfg.KurrentDB.Host),
				zap.Int("port", cfg.KurrentDB.Port),
			)
		}
	}

	app.Settings = settings.NewService(settings.NewRepository(db.Pool), cfg.Settings.Strict, log)
	app.Members = member.NewRepository(db.Pool)
	app.Actions = action.NewRepository(db.Pool)
	app.SyncLogs = syncjob.NewRepository(db.Pool)

	app.Calculator = risk.NewCalculator(app.Members, app.Settings, app.Publisher, log)
	app.Generator = action.NewGenerator(app.Actions, app.Settings, app.Publisher, log)
	app.Syncer = syncjob.NewSyncer(pacto.New(cfg.Pacto), app.Members, app.SyncLogs, app.Publisher, cfg.Pacto, log)
	app.Pipeline = pipeline.NewRunner(app.Syncer, app.Calculator, app.Generator, log)

	return app, nil
}

// Close releases connections and flushes the logger
func (a *App) Close() {
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	a.Logger.Sync()
}

// migrate applies pending schema migrations
func (a *App) migrate(ctx context.Context) error {
	applied, err := database.Migrate(ctx, a.DB.Pool, a.Logger)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	a.Logger.Info("migrations complete", zap.Int("applied", len(applied)))
	return nil
}
