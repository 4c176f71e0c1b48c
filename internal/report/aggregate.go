package report

import (
	"github.com/shopspring/decimal"

	"agfdash/internal/core"
)

type accumulator struct {
	revenue    decimal.Decimal
	objects    decimal.Decimal
	expense    decimal.Decimal
	subTotal   decimal.Decimal
	byCategory map[core.Category]decimal.Decimal
}

func newAccumulator() *accumulator {
	acc := &accumulator{byCategory: make(map[core.Category]decimal.Decimal, len(core.Categories()))}
	for _, c := range core.Categories() {
		acc.byCategory[c] = decimal.Zero
	}
	return acc
}

func (a *accumulator) cell() core.Cell {
	c := core.Cell{
		Revenue:                a.revenue.InexactFloat64(),
		ObjectCount:            a.objects.InexactFloat64(),
		ExpenseTotal:           a.expense.InexactFloat64(),
		SubAccountExpenseTotal: a.subTotal.InexactFloat64(),
		ExpenseByCategory:      make(map[core.Category]float64, len(a.byCategory)),
	}
	for k, v := range a.byCategory {
		c.ExpenseByCategory[k] = v.InexactFloat64()
	}
	return c
}

// Aggregator sums figures into cells keyed by period and unit name. Cells
// are created on first touch with every category present. Sums are exact,
// so the result does not depend on the order records are added.
type Aggregator struct {
	cells map[Key]*accumulator
}

func NewAggregator() *Aggregator {
	return &Aggregator{cells: make(map[Key]*accumulator)}
}

func (a *Aggregator) at(key Key) *accumulator {
	key.Unit = core.NormalizeUnitName(key.Unit)
	acc, ok := a.cells[key]
	if !ok {
		acc = newAccumulator()
		a.cells[key] = acc
	}
	return acc
}

// AddLedger adds a ledger entry's revenue and expense totals.
// It reports false, creating nothing, when key has no valid period.
func (a *Aggregator) AddLedger(key Key, revenue, expense float64) bool {
	if !key.Valid() {
		return false
	}
	acc := a.at(key)
	acc.revenue = acc.revenue.Add(decimal.NewFromFloat(revenue))
	acc.expense = acc.expense.Add(decimal.NewFromFloat(expense))
	return true
}

// AddObjectCount adds a Balancete quantity.
func (a *Aggregator) AddObjectCount(key Key, quantity float64) bool {
	if !key.Valid() {
		return false
	}
	acc := a.at(key)
	acc.objects = acc.objects.Add(decimal.NewFromFloat(quantity))
	return true
}

// AddExpenseLine adds an expense line amount to its category and to the
// sub-account total.
func (a *Aggregator) AddExpenseLine(key Key, category core.Category, amount float64) bool {
	if !key.Valid() {
		return false
	}
	acc := a.at(key)
	d := decimal.NewFromFloat(amount)
	category = category.OrDefault()
	acc.byCategory[category] = acc.byCategory[category].Add(d)
	acc.subTotal = acc.subTotal.Add(d)
	return true
}

// Len is the number of cells touched so far.
func (a *Aggregator) Len() int {
	return len(a.cells)
}

// Finalize converts the accumulated sums into a series.
func (a *Aggregator) Finalize() core.Series {
	out := make(core.Series)
	for key, acc := range a.cells {
		months, ok := out[key.Period.Year]
		if !ok {
			months = make(map[int]map[string]core.Cell)
			out[key.Period.Year] = months
		}
		units, ok := months[key.Period.Month]
		if !ok {
			units = make(map[string]core.Cell)
			months[key.Period.Month] = units
		}
		units[key.Unit] = acc.cell()
	}
	return out
}
