package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ports "agfdash/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Fixed tab for every entity. Empty means one "<entity> report" tab per entity.
	sheetName string
}

// Ensure interface conformance
var _ ports.ReportExporter = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME to write every report to one tab.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME")), nil
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     strings.TrimSpace(sheetName),
	}
}

// newSheetsService initializes a Sheets Service. A saved OAuth user token
// takes precedence; otherwise Service Account credentials are used from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if oauthConfigured() {
		ts, err := oauthTokenSource(ctx)
		if err != nil {
			return nil, err
		}
		service, err := gsheet.NewService(ctx, goption.WithTokenSource(ts))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		slog.InfoContext(ctx, "Google Sheets service created with OAuth user token")
		return service, nil
	}

	credentialsJSON, err := loadCredentials(ctx)
	if err != nil {
		return nil, err
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

func loadCredentials(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ExportReport appends the report's rows to its tab, creating the tab with
// a header row on first use. A run already present in column A is not
// written again.
func (c *Client) ExportReport(ctx context.Context, r ports.Report) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if strings.TrimSpace(r.RunID) == "" {
		return "", errors.New("missing run id")
	}

	tab := tabName(c.sheetName, r.EntityID)
	created, err := c.ensureTab(ctx, tab)
	if err != nil {
		return "", err
	}

	if !created {
		rng := a1Range(tab, "A:A")
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", rng, err)
		}
		if row := findRun(resp.Values, r.RunID); row > 0 {
			slog.InfoContext(ctx, "Report already exported", "run_id", r.RunID, "tab", tab, "row", row)
			return a1Range(tab, fmt.Sprintf("A%d", row)), nil
		}
	}

	vr := &gsheet.ValueRange{Values: reportValues(r, created)}
	if len(vr.Values) == 0 {
		return tab, nil
	}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1Range(tab, "A1"), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", tab, err)
	}

	ref := tab
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// ensureTab creates the tab when the spreadsheet lacks it and reports
// whether it did.
func (c *Client) ensureTab(ctx context.Context, tab string) (bool, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	if indexOf(titles, tab) != -1 {
		return false, nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("add sheet %s: %w", tab, err)
	}
	slog.InfoContext(ctx, "Created report sheet", "tab", tab)
	return true, nil
}
