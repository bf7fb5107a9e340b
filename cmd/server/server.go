package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"toolhub/services/conversion-api/internal/config"
	"toolhub/services/conversion-api/internal/domain/dispatch"
	"toolhub/services/conversion-api/internal/domain/execution"
	"toolhub/services/conversion-api/internal/domain/tool"
	"toolhub/services/conversion-api/internal/infrastructure/auth"
	"toolhub/services/conversion-api/internal/infrastructure/database"
	"toolhub/services/conversion-api/internal/infrastructure/logger"
	"toolhub/services/conversion-api/internal/infrastructure/observability"
	repo "toolhub/services/conversion-api/internal/infrastructure/repository/execution"
	"toolhub/services/conversion-api/internal/infrastructure/storage"
	"toolhub/services/conversion-api/internal/infrastructure/trigger"
	"toolhub/services/conversion-api/internal/interfaces/httpserver"
	"toolhub/services/conversion-api/internal/plugins"
	"toolhub/services/conversion-api/internal/worker"
)

// @title Conversion API
// @version 1.0
// @description File conversion orchestration service
// @BasePath /
type Application struct {
	httpServer *httpserver.HttpServer
	dispatcher *dispatch.Dispatcher
	sweeper    *worker.Sweeper
	cfg        *config.Config
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, dispatcher *dispatch.Dispatcher, sweeper *worker.Sweeper, cfg *config.Config, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		cfg:        cfg,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	go a.sweeper.Run(ctx)

	err := a.httpServer.Run(ctx)

	// Let in-flight remote triggers finish before the process exits;
	// otherwise accepted executions lose their trigger and sit pending until
	// the sweeper notices.
	a.dispatcher.Drain(a.cfg.TriggerDrainTimeout)
	return err
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	blobStore, err := newBlobStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize storage")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth")
	}

	registry := tool.NewRegistry(log)
	registry.Discover(plugins.Candidates())
	log.Info().Int("tools", len(registry.List())).Msg("tool registry ready")

	executionRepo := repo.NewRepository(db)
	executions := execution.NewService(executionRepo, log)
	triggerClient := trigger.NewClient(cfg, log)
	dispatcher := dispatch.NewDispatcher(registry, executions, blobStore, triggerClient, log)
	sweeper := worker.NewSweeper(executions, cfg.SweepInterval, cfg.StalePendingAfter, log)

	httpServer := httpserver.New(cfg, log, registry, dispatcher, executions, authValidator)
	app := NewApplication(httpServer, dispatcher, sweeper, cfg, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func newBlobStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (dispatch.BlobStore, error) {
	if cfg.IsLocalStorage() {
		return storage.NewLocalStorage(cfg, log)
	}
	return storage.NewS3Storage(ctx, cfg, log)
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
