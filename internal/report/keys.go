package report

import (
	"agfdash/internal/core"
	"agfdash/internal/store"
)

// Key addresses one aggregated cell.
type Key struct {
	Period core.Period
	Unit   string
}

// Valid reports whether the key has a usable year and month.
func (k Key) Valid() bool {
	return k.Period.Valid()
}

// KeyResolver derives the cell key of child records from their own fields,
// their parent ledger entry or a raw "mm/yyyy" link.
type KeyResolver struct {
	ledgers *LedgerIndex
	units   UnitNamer
	diag    *Collector
}

func NewKeyResolver(ledgers *LedgerIndex, units UnitNamer, diag *Collector) *KeyResolver {
	if diag == nil {
		diag = NewCollector()
	}
	return &KeyResolver{ledgers: ledgers, units: units, diag: diag}
}

// ForLedger keys a ledger entry by its own metadata.
func (k *KeyResolver) ForLedger(rec store.Record) Key {
	meta, ok := k.ledgers.Get(rec.ID())
	if !ok {
		meta = k.ledgers.metaOf(rec)
	}
	return Key{Period: meta.Period, Unit: meta.UnitName}
}

// ForObjectCount keys a Balancete summary. Its parent link must be an indexed
// ledger id or an embedded ledger object.
func (k *KeyResolver) ForObjectCount(rec store.Record) Key {
	key := k.resolve(rec, rec[store.FieldLedgerLink], false)
	if key.Unit == "" {
		key.Unit = DefaultUnitName
	}
	return key
}

// ForExpenseLine keys an expense line. A string link that is not a known
// ledger id is read as "mm/yyyy", and a direct AGF reference replaces the
// unit inherited from the parent.
func (k *KeyResolver) ForExpenseLine(rec store.Record) Key {
	key := k.resolve(rec, rec.Value(store.ExpenseLedgerLinkFields...), true)

	if id := store.RefID(rec[store.FieldUnit]); id != "" {
		if name, ok := k.units.UnitName(id); ok && name != "" {
			key.Unit = name
		} else {
			k.diag.UnresolvedUnit(id)
			// Folded id, not a placeholder, as in LedgerIndex.unitName.
			if key.Unit == "" || key.Unit == DefaultUnitName {
				key.Unit = core.NormalizeUnitName(id)
			}
		}
	}
	if key.Unit == "" {
		key.Unit = DefaultUnitName
	}
	return key
}

func (k *KeyResolver) resolve(rec store.Record, link any, monthYear bool) Key {
	key := Key{Period: core.Period{
		Year:  core.ResolveYear(rec[store.FieldYear]),
		Month: core.ResolveMonth(rec[store.FieldMonth]),
	}}

	ref := store.RefOf(link)
	switch {
	case ref.Embedded != nil:
		meta := k.ledgers.metaOf(ref.Embedded)
		key.fill(meta.Period)
		key.Unit = meta.UnitName
	case ref.ID != "":
		if meta, ok := k.ledgers.Get(ref.ID); ok {
			key.fill(meta.Period)
			key.Unit = meta.UnitName
			break
		}
		if monthYear {
			if p, ok := core.ParseMonthYear(ref.ID); ok {
				key.fill(p)
				break
			}
		}
		k.diag.UnresolvedLedger(ref.ID)
	}
	return key
}

// fill sets the year and month components that are still zero.
func (k *Key) fill(p core.Period) {
	if k.Period.Year == 0 {
		k.Period.Year = p.Year
	}
	if k.Period.Month == 0 {
		k.Period.Month = p.Month
	}
}
