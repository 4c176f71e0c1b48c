package sheets

import (
	"context"
	"time"

	"agfdash/internal/core"
)

// Report is one journaled run ready to be written out as a table.
type Report struct {
	RunID       string
	EntityID    string
	GeneratedAt time.Time
	Rows        []core.Row
}

// Ports for outbound adapters.
type (
	// ReportExporter writes a report's rows to a spreadsheet and returns a
	// reference to where they landed.
	ReportExporter interface {
		ExportReport(ctx context.Context, r Report) (ref string, err error)
	}
)

// Header is the column layout of an exported report.
func Header() []string {
	cols := []string{"run_id", "ano", "mes", "agf", "receita", "objetos", "despesa_total", "despesa_subcontas_total", "divergencia"}
	for _, c := range core.Categories() {
		cols = append(cols, string(c))
	}
	return cols
}

// Values flattens a row in Header order.
func Values(runID string, row core.Row) []any {
	c := row.Cell
	out := []any{runID, row.Year, row.Month, row.Unit, c.Revenue, c.ObjectCount, c.ExpenseTotal, c.SubAccountExpenseTotal, c.Divergence()}
	for _, cat := range core.Categories() {
		out = append(out, c.ExpenseByCategory[cat])
	}
	return out
}
