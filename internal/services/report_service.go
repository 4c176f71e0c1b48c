package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"agfdash/internal/amqp"
	"agfdash/internal/classify"
	"agfdash/internal/core"
	"agfdash/internal/report"
	"agfdash/internal/resolve"
	"agfdash/internal/store"
)

// ReportPublisher announces finished runs.
type ReportPublisher interface {
	PublishReportGenerated(ctx context.Context, msg *amqp.ReportGeneratedMessage) error
}

// ReportServiceConfig tunes the fetch stages.
type ReportServiceConfig struct {
	// PageSize is the page size of the bulk fetches (default: 1000)
	PageSize int

	// CategoryPageSize is the page size of the category fetch (default: 2000)
	CategoryPageSize int

	// BackfillConcurrency bounds in-flight backfill requests (default: 8)
	BackfillConcurrency int
}

// Result is one report run.
type Result struct {
	RunID    string
	EntityID string
	Payload  report.Payload
	Took     time.Duration
}

// ReportService runs the fetch, resolve, classify and aggregate pipeline for
// one entity. Each Build starts from scratch; nothing is cached between runs.
type ReportService struct {
	store      store.RecordStore
	classifier *classify.Classifier
	publisher  ReportPublisher
	config     ReportServiceConfig
	logger     *slog.Logger
}

func NewReportService(
	recordStore store.RecordStore,
	classifier *classify.Classifier,
	publisher ReportPublisher,
	config ReportServiceConfig,
	logger *slog.Logger,
) *ReportService {
	if classifier == nil {
		classifier = classify.Default()
	}
	if config.PageSize <= 0 {
		config.PageSize = store.DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		store:      recordStore,
		classifier: classifier,
		publisher:  publisher,
		config:     config,
		logger:     logger,
	}
}

// Build produces the dashboard payload for entityID. Any bulk fetch failure
// fails the whole build; backfill failures only show up in diagnostics.
func (s *ReportService) Build(ctx context.Context, entityID string) (*Result, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, core.ErrMissingEntityID
	}

	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID, "entity_id", entityID)

	resolver := resolve.New(s.store, resolve.Options{
		PageSize:            s.config.PageSize,
		CategoryPageSize:    s.config.CategoryPageSize,
		BackfillConcurrency: s.config.BackfillConcurrency,
		Logger:              logger,
	})

	// Stage 1: units, categories and the entity's ledger entries are independent.
	var ledgers []store.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return resolver.LoadUnits(gctx, entityID) })
	g.Go(func() error { return resolver.LoadCategories(gctx) })
	g.Go(func() error {
		recs, err := s.store.FetchAll(gctx, store.CollectionLedger,
			store.Filter{store.EqualsTo(store.FieldOwnerEntity, entityID)}, s.config.PageSize)
		if err != nil {
			return fmt.Errorf("load ledger entries: %w", err)
		}
		ledgers = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := report.NewBuilder(resolver, resolver, s.classifier)
	b.AddLedgerEntries(ledgers)

	// Stage 2: expense lines need the unit ids.
	lines, err := s.fetchExpenseLines(ctx, resolver.UnitIDs())
	if err != nil {
		return nil, err
	}

	// Stage 3: repair references the bulk fetches missed.
	diag := b.Diagnostics()
	diag.CategoryBackfill = resolver.BackfillCategories(ctx, report.CategoryIDs(lines))

	found, stats := resolver.Backfiller().Fetch(ctx, store.CollectionLedger, b.Ledgers().Missing(lines))
	diag.LedgerBackfill = stats
	backfilled := make([]store.Record, 0, len(found))
	for _, rec := range found {
		backfilled = append(backfilled, rec)
	}
	b.IndexLedgers(backfilled)

	// Stage 4: object summaries hang off the complete ledger index.
	summaries, err := s.fetchObjectSummaries(ctx, b.Ledgers().IDs())
	if err != nil {
		return nil, err
	}

	b.AddObjectCounts(summaries)
	b.AddExpenseLines(lines)

	res := &Result{
		RunID:    runID,
		EntityID: entityID,
		Payload:  b.Payload(resolver.Units()),
		Took:     time.Since(start),
	}

	d := res.Payload.Diagnostics
	logger.InfoContext(ctx, "Report built",
		"units", d.Records.Units,
		"ledger_entries", d.Records.LedgerEntries,
		"expense_lines", d.Records.ExpenseLines,
		"object_counts", d.Records.ObjectCounts,
		"cells", d.Records.Cells,
		"dropped", d.Dropped.Total(),
		"duration", res.Took)

	s.publish(ctx, res)
	return res, nil
}

func (s *ReportService) fetchExpenseLines(ctx context.Context, unitIDs []string) ([]store.Record, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	recs, err := s.store.FetchAll(ctx, store.CollectionExpenseLines,
		store.Filter{store.InSet(store.FieldUnit, unitIDs)}, s.config.PageSize)
	if err != nil {
		return nil, fmt.Errorf("load expense lines: %w", err)
	}
	return recs, nil
}

func (s *ReportService) fetchObjectSummaries(ctx context.Context, ledgerIDs []string) ([]store.Record, error) {
	if len(ledgerIDs) == 0 {
		return nil, nil
	}
	recs, err := s.store.FetchAll(ctx, store.CollectionObjectSummaries, store.Filter{
		store.InSet(store.FieldLedgerLink, ledgerIDs),
		store.EqualsTo(store.FieldObjectType, store.ObjectTypeTotal),
	}, s.config.PageSize)
	if err != nil {
		return nil, fmt.Errorf("load object summaries: %w", err)
	}
	return recs, nil
}

func (s *ReportService) publish(ctx context.Context, res *Result) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewReportGeneratedMessage(res.RunID, res.EntityID, res.Payload, res.Took)
	if err := s.publisher.PublishReportGenerated(ctx, msg); err != nil {
		// Don't fail the build - the payload is complete without the journal entry
		s.logger.ErrorContext(ctx, "Failed to publish report event",
			"run_id", res.RunID,
			"error", err)
	}
}
