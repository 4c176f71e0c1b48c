package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agfdash/internal/sheets"
	"agfdash/internal/storage"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often to check for pending runs (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of runs to export per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum export attempts before marking as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to prune old runs (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old a settled run must be before it is pruned (default: 720h)
	CleanupAge time.Duration
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      30 * 24 * time.Hour,
	}
}

// ExportProcessor drains the journal's export queue into a spreadsheet.
type ExportProcessor struct {
	storage  *storage.SQLiteRepository
	exporter sheets.ReportExporter
	config   ExportProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewExportProcessor creates a new export processor
func NewExportProcessor(
	storage *storage.SQLiteRepository,
	exporter sheets.ReportExporter,
	config ExportProcessorConfig,
) *ExportProcessor {
	defaults := DefaultExportProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.CleanupAge <= 0 {
		config.CleanupAge = defaults.CleanupAge
	}
	return &ExportProcessor{
		storage:  storage,
		exporter: exporter,
		config:   config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Reset runs left in processing by a previous crash
	if n, err := p.storage.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale exports", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Reset stale exports", "count", n)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.Cleanup(ctx)
		}
	}
}

// ProcessBatch exports one batch of pending runs and returns how many
// were exported.
func (p *ExportProcessor) ProcessBatch(ctx context.Context) int {
	claimed, err := p.storage.ClaimPendingExports(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to claim pending exports", "error", err)
		return 0
	}
	if len(claimed) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing export batch", "count", len(claimed))

	exported := 0
	for _, item := range claimed {
		// Claims left in processing are reset by the next Start
		if p.stopping(ctx) {
			return exported
		}

		if err := p.exportRun(ctx, item.RunID); err != nil {
			p.handleFailure(ctx, item, err)
			continue
		}
		if err := p.storage.MarkExported(ctx, item.RunID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark run exported", "run_id", item.RunID, "error", err)
			continue
		}
		exported++
	}
	return exported
}

func (p *ExportProcessor) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if p.stopCh == nil {
		return false
	}
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

func (p *ExportProcessor) exportRun(ctx context.Context, runID string) error {
	run, err := p.storage.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}

	ref, err := p.exporter.ExportReport(ctx, sheets.Report{
		RunID:       run.RunID,
		EntityID:    run.EntityID,
		GeneratedAt: run.GeneratedAt,
		Rows:        run.Rows,
	})
	if err != nil {
		return fmt.Errorf("export report: %w", err)
	}

	slog.InfoContext(ctx, "Exported report",
		"run_id", run.RunID,
		"entity_id", run.EntityID,
		"rows", len(run.Rows),
		"sheets_ref", ref)
	return nil
}

func (p *ExportProcessor) handleFailure(ctx context.Context, item storage.RunSummary, exportErr error) {
	slog.WarnContext(ctx, "Export failed",
		"run_id", item.RunID,
		"attempt", item.ExportAttempts+1,
		"error", exportErr)

	status, err := p.storage.MarkExportAttemptFailed(ctx, item.RunID, exportErr.Error(), p.config.MaxRetries)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record export failure", "run_id", item.RunID, "error", err)
		return
	}
	if status == storage.ExportFailed {
		slog.ErrorContext(ctx, "Export failed permanently after max retries",
			"run_id", item.RunID,
			"attempts", item.ExportAttempts+1)
	}
}

// Cleanup prunes settled runs older than CleanupAge.
func (p *ExportProcessor) Cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	n, err := p.storage.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to prune old runs", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Pruned old runs", "count", n, "cutoff", cutoff)
	}
}
