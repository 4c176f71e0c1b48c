// Package cli provides common initialization shared by cmd/agfdash,
// cmd/agfdash-worker and cmd/agfctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"agfdash/internal/amqp"
	"agfdash/internal/backend"
	"agfdash/internal/classify"
	"agfdash/internal/config"
	applog "agfdash/internal/log"
	"agfdash/internal/services"
	"agfdash/internal/storage"
	"agfdash/internal/store"
)

// SetupLogger initializes structured logging from cfg, or with defaults when
// cfg is nil, and sets it as the default logger.
func SetupLogger(cfg *config.Config) *applog.Logger {
	lc := applog.DefaultConfig()
	if cfg != nil {
		lc.Level = applog.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
	}
	logger := applog.New(lc)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// Bootstrap loads .env and configuration and returns the configured logger.
func Bootstrap() (*config.Config, *applog.Logger) {
	LoadEnvFile()
	cfg := LoadAndValidateConfig(SetupLogger(nil))
	return cfg, SetupLogger(cfg)
}

// InitSQLite initializes the run journal at the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// NewRecordStore creates the configured record store.
func NewRecordStore(ctx context.Context, cfg *config.Config, logger *applog.Logger) (store.RecordStore, func() error, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	bc.Logger = logger.WithComponent(applog.ComponentStore).Slog()
	opened, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog()).Open(ctx, bc)
	if err != nil {
		return nil, nil, err
	}
	return opened.Store, opened.Close, nil
}

// probeID is shaped like an upstream id but never assigned.
const probeID = "1000000000000x000000000000000000"

// StoreReadyCheck probes the record store with a get-one lookup. An absent
// record is success; auth or transport failures are not.
func StoreReadyCheck(recordStore store.RecordStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, _, err := recordStore.FetchOne(ctx, store.CollectionUnits, probeID)
		return err
	}
}

// LoadClassifier returns the rule table from CLASSIFIER_RULES_FILE, or the
// embedded default.
func LoadClassifier(cfg *config.Config) (*classify.Classifier, error) {
	if cfg.ClassifierRulesFile == "" {
		return classify.Default(), nil
	}
	c, err := classify.LoadFile(cfg.ClassifierRulesFile)
	if err != nil {
		return nil, fmt.Errorf("load classifier rules: %w", err)
	}
	return c, nil
}

// NewPublisher connects to AMQP when configured. A failed connection is
// logged and the service runs without publishing.
func NewPublisher(cfg *config.Config, logger *applog.Logger) *amqp.Client {
	if cfg.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without run events", "error", err)
		return nil
	}
	logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return client
}

// NewReportService wires the pipeline from configuration.
func NewReportService(cfg *config.Config, recordStore store.RecordStore, classifier *classify.Classifier, client *amqp.Client, logger *applog.Logger) *services.ReportService {
	var publisher services.ReportPublisher
	if client != nil {
		publisher = client
	}
	return services.NewReportService(recordStore, classifier, publisher, services.ReportServiceConfig{
		PageSize:            cfg.PageSize,
		CategoryPageSize:    cfg.CategoryPageSize,
		BackfillConcurrency: cfg.BackfillConcurrency,
	}, logger.WithComponent(applog.ComponentReport).Slog())
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
