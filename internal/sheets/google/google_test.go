package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"agfdash/internal/core"
	ports "agfdash/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadCredentials_Missing(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := loadCredentials(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestLoadCredentials_FileNotFound(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/nonexistent/creds.json")

	_, err := loadCredentials(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLoadCredentials_InlineWins(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/nonexistent/creds.json")

	data, err := loadCredentials(context.Background())
	if err != nil || string(data) != `{"type":"service_account"}` {
		t.Fatalf("unexpected credentials: %q err=%v", data, err)
	}
}

func TestExportReport_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.ExportReport(context.Background(), ports.Report{RunID: "r1"}); err == nil {
		t.Fatal("expected error with nil service")
	}
}

// fakeSheets emulates the three Sheets endpoints the exporter touches.
type fakeSheets struct {
	mu       sync.Mutex
	tabs     []string
	columnA  [][]any
	added    []string
	appended [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, ":append"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.appended = append(f.appended, vr.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "'e1 report'!A2:Q3"},
		})
	case strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.added = append(f.added, rq.AddSheet.Properties.Title)
			}
		}
		_, _ = w.Write([]byte(`{}`))
	case strings.Contains(path, "/values/"):
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.columnA})
	default:
		sheets := make([]map[string]any, 0, len(f.tabs))
		for _, t := range f.tabs {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	}
}

func newFakeClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return New(svc, "sid", "")
}

func testReport() ports.Report {
	return ports.Report{
		RunID:       "r1",
		EntityID:    "e1",
		GeneratedAt: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Rows: []core.Row{
			{Year: 2024, Month: 5, Unit: "Unit X", Cell: core.Cell{Revenue: 1000}},
			{Year: 2024, Month: 6, Unit: "Unit X"},
		},
	}
}

func TestExportReport_CreatesTabWithHeader(t *testing.T) {
	fake := &fakeSheets{}
	c := newFakeClient(t, fake)

	ref, err := c.ExportReport(context.Background(), testReport())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if ref != "'e1 report'!A2:Q3" {
		t.Errorf("unexpected ref: %s", ref)
	}
	if len(fake.added) != 1 || fake.added[0] != "e1 report" {
		t.Fatalf("expected tab to be created, got %v", fake.added)
	}
	if len(fake.appended) != 3 || fake.appended[0][0] != "run_id" {
		t.Fatalf("expected header + 2 rows, got %v", fake.appended)
	}
}

func TestExportReport_AppendsToExistingTab(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"e1 report"}, columnA: [][]any{{"run_id"}, {"r0"}}}
	c := newFakeClient(t, fake)

	if _, err := c.ExportReport(context.Background(), testReport()); err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(fake.added) != 0 {
		t.Errorf("tab should not be recreated: %v", fake.added)
	}
	if len(fake.appended) != 2 || fake.appended[0][0] != "r1" {
		t.Fatalf("expected 2 rows without header, got %v", fake.appended)
	}
}

func TestExportReport_SkipsExportedRun(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"e1 report"}, columnA: [][]any{{"run_id"}, {"r1"}, {"r1"}}}
	c := newFakeClient(t, fake)

	ref, err := c.ExportReport(context.Background(), testReport())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if ref != "'e1 report'!A2" {
		t.Errorf("unexpected ref: %s", ref)
	}
	if len(fake.appended) != 0 {
		t.Fatalf("run exported twice: %v", fake.appended)
	}
}
