package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agfdash/internal/amqp"
	"agfdash/internal/storage"
)

// BatchExporter drains pending exports. Satisfied by services.ExportProcessor.
type BatchExporter interface {
	ProcessBatch(ctx context.Context) int
}

// ReportWorker journals ReportGenerated events and, when an exporter is
// configured, pushes fresh runs out without waiting for the next poll.
type ReportWorker struct {
	storage  *storage.SQLiteRepository
	exporter BatchExporter
}

func NewReportWorker(storage *storage.SQLiteRepository, exporter BatchExporter) *ReportWorker {
	return &ReportWorker{
		storage:  storage,
		exporter: exporter,
	}
}

// HandleReportGenerated stores one run. A redelivered run is acknowledged
// without being stored twice.
func (w *ReportWorker) HandleReportGenerated(ctx context.Context, msg *amqp.ReportGeneratedMessage) error {
	slog.InfoContext(ctx, "Processing report message",
		"run_id", msg.RunID,
		"entity_id", msg.EntityID,
		"rows", len(msg.Rows))

	saved, err := w.storage.SaveRun(ctx, storage.Run{
		RunID:       msg.RunID,
		EntityID:    strings.TrimSpace(msg.EntityID),
		GeneratedAt: msg.GeneratedAt,
		DurationMS:  msg.DurationMS,
		Diagnostics: msg.Diagnostics,
		Rows:        msg.Rows,
	})
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if !saved {
		slog.InfoContext(ctx, "Run already journaled, skipping", "run_id", msg.RunID)
		return nil
	}

	if w.exporter != nil {
		w.exporter.ProcessBatch(ctx)
	}
	return nil
}

// StartupCheck logs the journal state and exports anything left pending
// from before the worker went down.
func (w *ReportWorker) StartupCheck(ctx context.Context) error {
	stats, err := w.storage.ExportStats(ctx)
	if err != nil {
		return fmt.Errorf("export stats for startup check: %w", err)
	}

	slog.InfoContext(ctx, "Journal state on startup",
		"pending", stats[storage.ExportPending],
		"processing", stats[storage.ExportProcessing],
		"done", stats[storage.ExportDone],
		"failed", stats[storage.ExportFailed])

	if w.exporter == nil || stats[storage.ExportPending] == 0 {
		return nil
	}

	exported := 0
	for {
		n := w.exporter.ProcessBatch(ctx)
		if n == 0 {
			break
		}
		exported += n
	}
	slog.InfoContext(ctx, "Startup export completed", "exported", exported)
	return nil
}
