//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"toolhub/services/conversion-api/internal/config"
	"toolhub/services/conversion-api/internal/domain/dispatch"
	"toolhub/services/conversion-api/internal/domain/execution"
	"toolhub/services/conversion-api/internal/domain/tool"
	"toolhub/services/conversion-api/internal/infrastructure/auth"
	"toolhub/services/conversion-api/internal/infrastructure/database"
	"toolhub/services/conversion-api/internal/infrastructure/logger"
	repo "toolhub/services/conversion-api/internal/infrastructure/repository/execution"
	"toolhub/services/conversion-api/internal/infrastructure/storage"
	"toolhub/services/conversion-api/internal/infrastructure/trigger"
	"toolhub/services/conversion-api/internal/interfaces/httpserver"
	"toolhub/services/conversion-api/internal/plugins"
	"toolhub/services/conversion-api/internal/worker"
)

var conversionSet = wire.NewSet(
	repo.NewRepository,
	wire.Bind(new(execution.Repository), new(*repo.Repository)),
	execution.NewService,
	provideStorage,
	trigger.NewClient,
	wire.Bind(new(dispatch.Trigger), new(*trigger.Client)),
	provideRegistry,
	dispatch.NewDispatcher,
	provideSweeper,
)

// BuildApplication assembles the conversion API with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		auth.NewValidator,
		newDatabaseConfig,
		newGormDB,
		conversionSet,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

// provideStorage creates the appropriate storage backend based on configuration.
func provideStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (dispatch.BlobStore, error) {
	if cfg.IsLocalStorage() {
		return storage.NewLocalStorage(cfg, log)
	}
	return storage.NewS3Storage(ctx, cfg, log)
}

func provideRegistry(log zerolog.Logger) *tool.Registry {
	registry := tool.NewRegistry(log)
	registry.Discover(plugins.Candidates())
	return registry
}

func provideSweeper(executions *execution.Service, cfg *config.Config, log zerolog.Logger) *worker.Sweeper {
	return worker.NewSweeper(executions, cfg.SweepInterval, cfg.StalePendingAfter, log)
}
