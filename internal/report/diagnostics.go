package report

import (
	"sort"

	"agfdash/internal/resolve"
)

// Diagnostics lists the silent degradations that happened while building a
// report. None of them fail the request.
type Diagnostics struct {
	Records                 RecordCounts          `json:"records"`
	UnresolvedUnits         []string              `json:"unresolved_units,omitempty"`
	UnresolvedCategories    []string              `json:"unresolved_categories,omitempty"`
	UnresolvedLedgerEntries []string              `json:"unresolved_ledger_entries,omitempty"`
	Dropped                 DropCounts            `json:"dropped"`
	CategoryBackfill        resolve.BackfillStats `json:"category_backfill"`
	LedgerBackfill          resolve.BackfillStats `json:"ledger_backfill"`
}

// RecordCounts counts the records fed into the report per stream.
type RecordCounts struct {
	Units         int `json:"units"`
	LedgerEntries int `json:"ledger_entries"`
	LedgerIndexed int `json:"ledger_indexed"`
	ObjectCounts  int `json:"object_counts"`
	ExpenseLines  int `json:"expense_lines"`
	Cells         int `json:"cells"`
}

// DropCounts counts records left out because no period could be derived.
type DropCounts struct {
	LedgerEntries int `json:"ledger_entries"`
	ObjectCounts  int `json:"object_counts"`
	ExpenseLines  int `json:"expense_lines"`
}

// Total is the number of dropped records across streams.
func (d DropCounts) Total() int {
	return d.LedgerEntries + d.ObjectCounts + d.ExpenseLines
}

// Collector accumulates diagnostics for one report.
type Collector struct {
	units      map[string]struct{}
	categories map[string]struct{}
	ledgers    map[string]struct{}
	dropped    DropCounts
	records    RecordCounts

	CategoryBackfill resolve.BackfillStats
	LedgerBackfill   resolve.BackfillStats
}

func NewCollector() *Collector {
	return &Collector{
		units:      make(map[string]struct{}),
		categories: make(map[string]struct{}),
		ledgers:    make(map[string]struct{}),
	}
}

func (c *Collector) UnresolvedUnit(id string)     { addID(c.units, id) }
func (c *Collector) UnresolvedCategory(id string) { addID(c.categories, id) }
func (c *Collector) UnresolvedLedger(id string)   { addID(c.ledgers, id) }

func (c *Collector) DroppedLedger()      { c.dropped.LedgerEntries++ }
func (c *Collector) DroppedObjectCount() { c.dropped.ObjectCounts++ }
func (c *Collector) DroppedExpenseLine() { c.dropped.ExpenseLines++ }

// Snapshot returns the collected diagnostics with ids sorted.
func (c *Collector) Snapshot() Diagnostics {
	return Diagnostics{
		UnresolvedUnits:         sortedKeys(c.units),
		UnresolvedCategories:    sortedKeys(c.categories),
		UnresolvedLedgerEntries: sortedKeys(c.ledgers),
		Records:                 c.records,
		Dropped:                 c.dropped,
		CategoryBackfill:        c.CategoryBackfill,
		LedgerBackfill:          c.LedgerBackfill,
	}
}

func addID(set map[string]struct{}, id string) {
	if id != "" {
		set[id] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
