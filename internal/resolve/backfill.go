package resolve

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"agfdash/internal/store"
)

const (
	// DefaultConcurrency bounds in-flight backfill requests.
	DefaultConcurrency = 8
	// batchChunk keeps "_id in [...]" constraints within URL limits.
	batchChunk = 100
)

// BackfillStats describes one backfill round.
type BackfillStats struct {
	Requested int      `json:"requested"`
	Batched   int      `json:"batched"`
	Single    int      `json:"single"`
	NotFound  []string `json:"not_found,omitempty"`
	Failed    []string `json:"failed,omitempty"`
}

// Backfiller resolves ids that a bulk fetch did not return.
type Backfiller struct {
	store       store.RecordStore
	concurrency int
	logger      *slog.Logger
}

// NewBackfiller creates a backfiller. concurrency <= 0 uses DefaultConcurrency.
func NewBackfiller(s store.RecordStore, concurrency int, logger *slog.Logger) *Backfiller {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{store: s, concurrency: concurrency, logger: logger}
}

// Fetch resolves ids from collection. When the store honours "_id in" filters
// the ids are first requested in batches; whatever is still missing is then
// fetched one by one. Errors are logged and the id is left unresolved, so
// Fetch never fails. Every request has completed when Fetch returns.
func (b *Backfiller) Fetch(ctx context.Context, collection string, ids []string) (map[string]store.Record, BackfillStats) {
	ids = uniqueNonEmpty(ids)
	found := make(map[string]store.Record, len(ids))
	stats := BackfillStats{Requested: len(ids)}
	if len(ids) == 0 {
		return found, stats
	}

	var mu sync.Mutex

	if store.SupportsIDFilter(b.store) {
		g := new(errgroup.Group)
		g.SetLimit(b.concurrency)
		for start := 0; start < len(ids); start += batchChunk {
			chunk := ids[start:min(start+batchChunk, len(ids))]
			g.Go(func() error {
				recs, err := b.store.FetchAll(ctx, collection,
					store.Filter{store.InSet(store.FieldID, chunk)}, len(chunk))
				if err != nil {
					b.logger.WarnContext(ctx, "Batched backfill failed, falling back to single fetches",
						"collection", collection,
						"ids", len(chunk),
						"error", err)
					return nil
				}
				mu.Lock()
				for _, r := range recs {
					if id := r.ID(); id != "" {
						found[id] = r
					}
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
		stats.Batched = len(found)
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)
	for _, id := range missing {
		g.Go(func() error {
			rec, ok, err := b.store.FetchOne(ctx, collection, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				b.logger.WarnContext(ctx, "Backfill fetch failed",
					"collection", collection,
					"id", id,
					"error", err)
				stats.Failed = append(stats.Failed, id)
			case !ok:
				stats.NotFound = append(stats.NotFound, id)
			default:
				found[id] = rec
				stats.Single++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(stats.NotFound)
	sort.Strings(stats.Failed)

	b.logger.DebugContext(ctx, "Backfill complete",
		"collection", collection,
		"requested", stats.Requested,
		"batched", stats.Batched,
		"single", stats.Single,
		"not_found", len(stats.NotFound),
		"failed", len(stats.Failed))

	return found, stats
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
