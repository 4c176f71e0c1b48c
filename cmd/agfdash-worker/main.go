package main

import (
	"context"
	"errors"
	"os"
	"time"

	"agfdash/internal/amqp"
	"agfdash/internal/cli"
	"agfdash/internal/services"
	gsheet "agfdash/internal/sheets/google"
	"agfdash/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting agfdash-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	// Sheets export is optional; without it runs are only journaled.
	var processor *services.ExportProcessor
	if cfg.ExportEnabled() {
		sheetsClient, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		processor = services.NewExportProcessor(sqliteRepo, sheetsClient, services.ExportProcessorConfig{
			PollInterval: cfg.ExportInterval,
			BatchSize:    cfg.ExportBatchSize,
			MaxRetries:   cfg.ExportMaxRetries,
			CleanupAge:   cfg.RetentionAge,
		})
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	var reportWorker *worker.ReportWorker
	if processor != nil {
		reportWorker = worker.NewReportWorker(sqliteRepo, processor)
	} else {
		reportWorker = worker.NewReportWorker(sqliteRepo, nil)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if processor == nil || !processor.IsRunning() {
			return
		}
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Export processor stop error", "error", err)
		}
	})

	logger.Info("Performing startup export check...")
	if err := reportWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup export check", "error", err)
	}

	if processor != nil {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start export processor", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		err := amqpClient.ConsumeReportGenerated(ctx, reportWorker.HandleReportGenerated)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
