package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"agfdash/internal/cli"
	apphttp "agfdash/internal/http"
)

func main() {
	cfg, logger := cli.Bootstrap()

	recordStore, cleanup, err := cli.NewRecordStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize record store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	classifier, err := cli.LoadClassifier(cfg)
	if err != nil {
		logger.Error("Failed to load classifier rules", "error", err, "path", cfg.ClassifierRulesFile)
		os.Exit(1)
	}
	logger.Info("Classifier ready", "rules", classifier.Rules(), "path", cfg.ClassifierRulesFile)

	publisher := cli.NewPublisher(cfg, logger)
	reports := cli.NewReportService(cfg, recordStore, classifier, publisher, logger)

	srv := apphttp.NewServer(":"+cfg.Port, reports, apphttp.Options{
		RequestTimeout:     cfg.RequestTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		JWTSecret:          cfg.JWTSecret,
		Logger:             logger,
		ReadyChecks: map[string]apphttp.ReadyCheck{
			"record_store": cli.StoreReadyCheck(recordStore),
		},
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		if err := cleanup(); err != nil {
			logger.Warn("Record store cleanup error", "error", err)
		}
	})

	logger.Info("Starting agfdash server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"auth", cfg.AuthEnabled(),
		"publisher", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
