// Package report turns fetched records into the year/month/unit series:
// it derives each record's period and unit, classifies expense lines and
// accumulates the figures.
package report

import (
	"sort"

	"agfdash/internal/core"
	"agfdash/internal/store"
)

// DefaultUnitName keys records whose unit cannot be determined at all.
const DefaultUnitName = "AGF"

// UnitNamer resolves business unit ids to normalized names.
type UnitNamer interface {
	UnitName(id string) (string, bool)
}

// LedgerMeta is what child records inherit from their ledger entry.
type LedgerMeta struct {
	Period   core.Period
	UnitID   string
	UnitName string
}

// LedgerIndex maps ledger entry ids to their derived period and unit.
type LedgerIndex struct {
	units   UnitNamer
	diag    *Collector
	entries map[string]LedgerMeta
}

func NewLedgerIndex(units UnitNamer, diag *Collector) *LedgerIndex {
	if diag == nil {
		diag = NewCollector()
	}
	return &LedgerIndex{units: units, diag: diag, entries: make(map[string]LedgerMeta)}
}

// Add indexes a ledger entry and returns its metadata.
func (x *LedgerIndex) Add(rec store.Record) LedgerMeta {
	meta := x.metaOf(rec)
	if id := rec.ID(); id != "" {
		x.entries[id] = meta
	}
	return meta
}

// Get returns the metadata of an indexed entry.
func (x *LedgerIndex) Get(id string) (LedgerMeta, bool) {
	m, ok := x.entries[id]
	return m, ok
}

// Len is the number of indexed entries.
func (x *LedgerIndex) Len() int {
	return len(x.entries)
}

// IDs returns the indexed ids, sorted.
func (x *LedgerIndex) IDs() []string {
	ids := make([]string, 0, len(x.entries))
	for id := range x.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Missing returns the ledger ids referenced by expense lines that are not
// indexed yet. Links that are really "mm/yyyy" strings are not ids and are
// skipped.
func (x *LedgerIndex) Missing(lines []store.Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range lines {
		ref := store.RefOf(rec.Value(store.ExpenseLedgerLinkFields...))
		if ref.ID == "" {
			continue
		}
		if ref.Embedded == nil {
			if _, ok := core.ParseMonthYear(ref.ID); ok {
				continue
			}
		}
		if _, ok := x.entries[ref.ID]; ok {
			continue
		}
		if _, ok := seen[ref.ID]; ok {
			continue
		}
		seen[ref.ID] = struct{}{}
		out = append(out, ref.ID)
	}
	return out
}

// metaOf derives period and unit from a ledger entry or an embedded parent.
// Year and month prefer Ano and Mês and fall back to the "mm/yyyy" Data field.
// The unit name falls back to the raw id, then to DefaultUnitName.
func (x *LedgerIndex) metaOf(rec store.Record) LedgerMeta {
	p := core.Period{
		Year:  core.ResolveYear(rec[store.FieldYear]),
		Month: core.ResolveMonth(rec[store.FieldMonth]),
	}
	if p.Year == 0 || p.Month == 0 {
		if data, ok := rec[store.FieldDate].(string); ok {
			fallback := core.SplitMonthYear(data)
			if p.Year == 0 {
				p.Year = fallback.Year
			}
			if p.Month == 0 {
				p.Month = fallback.Month
			}
		}
	}

	unitID := store.RefID(rec[store.FieldUnit])
	return LedgerMeta{Period: p, UnitID: unitID, UnitName: x.unitName(unitID)}
}

// unitName falls back to the folded id for an unknown unit rather than a
// generic placeholder, so distinct unknown units stay in distinct cells.
func (x *LedgerIndex) unitName(id string) string {
	if name, ok := x.units.UnitName(id); ok && name != "" {
		return name
	}
	if id == "" {
		return DefaultUnitName
	}
	x.diag.UnresolvedUnit(id)
	return core.NormalizeUnitName(id)
}
