package report

import (
	"encoding/json"
	"regexp"
	"strconv"

	"agfdash/internal/classify"
	"agfdash/internal/core"
	"agfdash/internal/store"
)

// CategoryNamer resolves expense category ids to their raw names.
type CategoryNamer interface {
	CategoryName(id string) (string, bool)
}

// Payload is the dashboard response body.
type Payload struct {
	Units       []core.BusinessUnit `json:"agfs"`
	Categories  []core.Category     `json:"categoriasDespesa"`
	Data        core.Series         `json:"dados"`
	Diagnostics Diagnostics         `json:"diagnostics"`
}

// Rows flattens the payload data for tabular export.
func (p Payload) Rows() []core.Row {
	return p.Data.Rows()
}

// Builder feeds the three record streams into one aggregation.
// It is used by a single goroutine for a single report.
type Builder struct {
	classifier *classify.Classifier
	categories CategoryNamer
	ledgers    *LedgerIndex
	keys       *KeyResolver
	agg        *Aggregator
	diag       *Collector
}

func NewBuilder(units UnitNamer, categories CategoryNamer, classifier *classify.Classifier) *Builder {
	if classifier == nil {
		classifier = classify.Default()
	}
	diag := NewCollector()
	ledgers := NewLedgerIndex(units, diag)
	return &Builder{
		classifier: classifier,
		categories: categories,
		ledgers:    ledgers,
		keys:       NewKeyResolver(ledgers, units, diag),
		agg:        NewAggregator(),
		diag:       diag,
	}
}

// Ledgers is the index child records are keyed against.
func (b *Builder) Ledgers() *LedgerIndex { return b.ledgers }

// Diagnostics is the collector shared by every stage of the build.
func (b *Builder) Diagnostics() *Collector { return b.diag }

// IndexLedgers makes entries available as parents without adding their totals.
// Backfilled entries go through here.
func (b *Builder) IndexLedgers(recs []store.Record) {
	for _, rec := range recs {
		b.ledgers.Add(rec)
	}
	b.diag.records.LedgerIndexed = b.ledgers.Len()
}

// AddLedgerEntries indexes the entity's ledger entries and adds their totals.
func (b *Builder) AddLedgerEntries(recs []store.Record) {
	for _, rec := range recs {
		meta := b.ledgers.Add(rec)
		key := Key{Period: meta.Period, Unit: meta.UnitName}
		revenue := core.ParseLocaleNumber(rec[store.FieldTotalRevenue])
		expense := core.ParseLocaleNumber(rec[store.FieldTotalExpense])
		if !b.agg.AddLedger(key, revenue, expense) {
			b.diag.DroppedLedger()
		}
	}
	b.diag.records.LedgerEntries += len(recs)
	b.diag.records.LedgerIndexed = b.ledgers.Len()
}

// AddObjectCounts adds Balancete quantities. Ledger entries must be indexed first.
func (b *Builder) AddObjectCounts(recs []store.Record) {
	for _, rec := range recs {
		key := b.keys.ForObjectCount(rec)
		if !b.agg.AddObjectCount(key, core.ParseLocaleNumber(rec[store.FieldQuantity])) {
			b.diag.DroppedObjectCount()
		}
	}
	b.diag.records.ObjectCounts += len(recs)
}

// AddExpenseLines classifies and adds expense lines.
func (b *Builder) AddExpenseLines(recs []store.Record) {
	for _, rec := range recs {
		key := b.keys.ForExpenseLine(rec)
		if !key.Valid() {
			b.diag.DroppedExpenseLine()
			continue
		}
		id, name := b.categoryOf(rec[store.FieldCategoria])
		category := b.classifier.Classify(classify.Input{
			CategoryID:   id,
			CategoryName: name,
			Description:  rec.Text(store.DescriptionFields...),
		})
		b.agg.AddExpenseLine(key, category, core.ParseLocaleNumber(rec[store.FieldAmount]))
	}
	b.diag.records.ExpenseLines += len(recs)
}

// Payload finalizes the aggregation.
func (b *Builder) Payload(units []core.BusinessUnit) Payload {
	if units == nil {
		units = []core.BusinessUnit{}
	}
	b.diag.records.Units = len(units)
	b.diag.records.Cells = b.agg.Len()
	return Payload{
		Units:       units,
		Categories:  core.Categories(),
		Data:        b.agg.Finalize(),
		Diagnostics: b.diag.Snapshot(),
	}
}

// CategoryIDs returns the category ids referenced by expense lines as bare
// strings, which are the ones a category backfill can resolve.
func CategoryIDs(lines []store.Record) []string {
	var ids []string
	for _, rec := range lines {
		if id, ok := rec[store.FieldCategoria].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// categoryOf reads a Categoria value. A string is an id unless no category
// has that id and it does not look like one, in which case it is the name.
func (b *Builder) categoryOf(v any) (id, name string) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", ""
		}
		if n, ok := b.categories.CategoryName(t); ok {
			return t, n
		}
		if recordID.MatchString(t) {
			b.diag.UnresolvedCategory(t)
			return t, ""
		}
		return t, t
	case map[string]any:
		rec := store.Record(t)
		id = rec.ID()
		name = rec.Text(store.CategoryBackfillNameFields...)
		if name == "" && id != "" {
			name, _ = b.categories.CategoryName(id)
		}
		return id, name
	case float64:
		return "", strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return "", t.String()
	default:
		return "", ""
	}
}

// recordID matches the "<digits>x<digits>" shape of upstream record ids.
var recordID = regexp.MustCompile(`^\d+x\d+$`)
