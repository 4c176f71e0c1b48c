// Package resolve builds id to name lookups for business units and expense
// categories, and backfills ids that the bulk fetches did not return.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"agfdash/internal/core"
	"agfdash/internal/store"
)

// DefaultCategoryPageSize is larger than the store default because the
// category collection is small and always read in full.
const DefaultCategoryPageSize = 2000

// Options tunes the resolver.
type Options struct {
	PageSize            int
	CategoryPageSize    int
	BackfillConcurrency int
	Logger              *slog.Logger
}

// Resolver holds the lookups for one report. It is not shared across reports.
type Resolver struct {
	store    store.RecordStore
	backfill *Backfiller
	opts     Options
	logger   *slog.Logger

	mu         sync.RWMutex
	units      []core.BusinessUnit
	unitNames  map[string]string
	categories map[string]string
}

func New(s store.RecordStore, opts Options) *Resolver {
	if opts.PageSize <= 0 {
		opts.PageSize = store.DefaultPageSize
	}
	if opts.CategoryPageSize <= 0 {
		opts.CategoryPageSize = DefaultCategoryPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:      s,
		backfill:   NewBackfiller(s, opts.BackfillConcurrency, logger),
		opts:       opts,
		logger:     logger,
		unitNames:  make(map[string]string),
		categories: make(map[string]string),
	}
}

// Backfiller exposes the resolver's backfiller so ledger entries can be
// repaired with the same concurrency bound.
func (r *Resolver) Backfiller() *Backfiller {
	return r.backfill
}

// LoadUnits fetches the AGFs owned by entityID. Names are normalized; a unit
// without any name field is named after its id.
func (r *Resolver) LoadUnits(ctx context.Context, entityID string) error {
	recs, err := r.store.FetchAll(ctx, store.CollectionUnits,
		store.Filter{store.EqualsTo(store.FieldOwnerEntity, entityID)}, r.opts.PageSize)
	if err != nil {
		return fmt.Errorf("load business units: %w", err)
	}

	units := make([]core.BusinessUnit, 0, len(recs))
	names := make(map[string]string, len(recs))
	for _, rec := range recs {
		id := rec.ID()
		raw := rec.Text(store.UnitNameFields...)
		if raw == "" {
			raw = id
		}
		u := core.BusinessUnit{ID: id, Name: core.NormalizeUnitName(raw)}
		units = append(units, u)
		names[id] = u.Name
	}

	r.mu.Lock()
	r.units = units
	r.unitNames = names
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Loaded business units", "entity_id", entityID, "count", len(units))
	return nil
}

// LoadCategories fetches every expense category.
func (r *Resolver) LoadCategories(ctx context.Context) error {
	recs, err := r.store.FetchAll(ctx, store.CollectionCategories, nil, r.opts.CategoryPageSize)
	if err != nil {
		return fmt.Errorf("load expense categories: %w", err)
	}

	cats := make(map[string]string, len(recs))
	for _, rec := range recs {
		cats[rec.ID()] = rec.Text(store.CategoryNameFields...)
	}

	r.mu.Lock()
	r.categories = cats
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Loaded expense categories", "count", len(cats))
	return nil
}

// Units returns the loaded business units in store order.
func (r *Resolver) Units() []core.BusinessUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.BusinessUnit(nil), r.units...)
}

// UnitIDs returns the ids of the loaded business units.
func (r *Resolver) UnitIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.units))
	for _, u := range r.units {
		ids = append(ids, u.ID)
	}
	return ids
}

// UnitName returns the normalized name of a unit and whether it was known.
func (r *Resolver) UnitName(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.unitNames[id]
	return name, ok
}

// CategoryName returns the raw name of a category and whether it was known.
func (r *Resolver) CategoryName(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.categories[id]
	return name, ok
}

// MissingCategories lists the ids not present in the category lookup.
func (r *Resolver) MissingCategories(ids []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, id := range uniqueNonEmpty(ids) {
		if _, ok := r.categories[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// BackfillCategories fetches categories referenced by id but absent from the
// bulk list. Only records with a usable name are added to the lookup.
func (r *Resolver) BackfillCategories(ctx context.Context, ids []string) BackfillStats {
	missing := r.MissingCategories(ids)
	found, stats := r.backfill.Fetch(ctx, store.CollectionCategories, missing)

	r.mu.Lock()
	for id, rec := range found {
		if name := rec.Text(store.CategoryBackfillNameFields...); name != "" {
			r.categories[id] = name
		}
	}
	r.mu.Unlock()

	if len(missing) > 0 {
		r.logger.InfoContext(ctx, "Backfilled expense categories",
			"missing", len(missing),
			"resolved", len(found))
	}
	return stats
}
