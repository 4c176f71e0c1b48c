package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agfdash/internal/sheets"
)

// Exporter keeps exported reports in memory, keyed by run id.
type Exporter struct {
	mu      sync.Mutex
	tables  map[string][][]any
	order   []string
	failErr error
}

func New() *Exporter {
	return &Exporter{tables: map[string][][]any{}}
}

// FailWith makes subsequent exports return err. Pass nil to recover.
func (e *Exporter) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failErr = err
}

// ExportReport stores the header and rows and returns a synthetic reference.
// Exporting the same run twice replaces the earlier table.
func (e *Exporter) ExportReport(_ context.Context, r sheets.Report) (string, error) {
	if r.RunID == "" {
		return "", errors.New("missing run id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failErr != nil {
		return "", e.failErr
	}

	header := sheets.Header()
	table := make([][]any, 0, len(r.Rows)+1)
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	table = append(table, row)
	for _, rw := range r.Rows {
		table = append(table, sheets.Values(r.RunID, rw))
	}

	if _, ok := e.tables[r.RunID]; !ok {
		e.order = append(e.order, r.RunID)
	}
	e.tables[r.RunID] = table
	return fmt.Sprintf("mem:%s:%d", r.RunID, len(r.Rows)), nil
}

// Table returns the exported table for a run, header first.
func (e *Exporter) Table(runID string) ([][]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[runID]
	return t, ok
}

// RunIDs lists exported runs in first-export order.
func (e *Exporter) RunIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}
