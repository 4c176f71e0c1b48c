package core

import "sort"

// Cell is the aggregated figures for one (year, month, unit) key.
// ExpenseTotal comes from ledger entries and SubAccountExpenseTotal from
// expense lines; the two are tracked independently and never reconciled.
type Cell struct {
	Revenue                float64              `json:"receita"`
	ObjectCount            float64              `json:"objetos"`
	ExpenseTotal           float64              `json:"despesa_total"`
	ExpenseByCategory      map[Category]float64 `json:"despesas"`
	SubAccountExpenseTotal float64              `json:"despesa_subcontas_total"`
}

// Divergence is ExpenseTotal minus SubAccountExpenseTotal.
func (c Cell) Divergence() float64 {
	return c.ExpenseTotal - c.SubAccountExpenseTotal
}

// Series is year -> month -> unit name -> cell.
type Series map[int]map[int]map[string]Cell

// Cell returns the cell for a key and whether it exists.
func (s Series) Cell(year, month int, unit string) (Cell, bool) {
	months, ok := s[year]
	if !ok {
		return Cell{}, false
	}
	units, ok := months[month]
	if !ok {
		return Cell{}, false
	}
	c, ok := units[unit]
	return c, ok
}

// Len counts the cells in the series.
func (s Series) Len() int {
	n := 0
	for _, months := range s {
		for _, units := range months {
			n += len(units)
		}
	}
	return n
}

// Row is one cell flattened for tabular export.
type Row struct {
	Year  int    `json:"ano"`
	Month int    `json:"mes"`
	Unit  string `json:"agf"`
	Cell  Cell   `json:"cell"`
}

// Rows flattens the series ordered by year, month and unit.
func (s Series) Rows() []Row {
	rows := make([]Row, 0, s.Len())
	for y, months := range s {
		for m, units := range months {
			for u, c := range units {
				rows = append(rows, Row{Year: y, Month: m, Unit: u, Cell: c})
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.Unit < b.Unit
	})
	return rows
}
