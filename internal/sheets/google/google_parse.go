package google

import (
	"fmt"
	"strings"

	ports "agfdash/internal/sheets"
)

// tabName picks the destination tab: the configured one, else "<entity> report".
func tabName(configured, entityID string) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return "report"
	}
	return entityID + " report"
}

// a1Range quotes the tab name so names with spaces or quotes stay valid.
func a1Range(tab, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(tab, "'", "''"), cells)
}

// reportValues converts a report into sheet rows, optionally led by the header.
func reportValues(r ports.Report, withHeader bool) [][]any {
	out := make([][]any, 0, len(r.Rows)+1)
	if withHeader {
		header := ports.Header()
		row := make([]any, len(header))
		for i, h := range header {
			row[i] = h
		}
		out = append(out, row)
	}
	for _, rw := range r.Rows {
		out = append(out, ports.Values(r.RunID, rw))
	}
	return out
}

// findRun returns the 1-based row holding runID in column A, or 0.
func findRun(values [][]any, runID string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == runID {
			return i + 1
		}
	}
	return 0
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}
