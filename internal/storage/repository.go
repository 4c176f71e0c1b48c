package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agfdash/internal/core"
	"agfdash/internal/report"

	_ "modernc.org/sqlite"
)

// ExportStatus tracks a run through the Sheets export queue.
type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportProcessing ExportStatus = "processing"
	ExportDone       ExportStatus = "done"
	ExportFailed     ExportStatus = "failed"
)

var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Run is one journaled report build.
type Run struct {
	RunID          string
	EntityID       string
	GeneratedAt    time.Time
	DurationMS     int64
	Diagnostics    report.Diagnostics
	Rows           []core.Row
	ExportStatus   ExportStatus
	ExportAttempts int
	ExportError    string
}

// RunSummary is a run without its rows.
type RunSummary struct {
	RunID          string
	EntityID       string
	GeneratedAt    time.Time
	DurationMS     int64
	Cells          int
	Dropped        int
	ExportStatus   ExportStatus
	ExportAttempts int
	ExportError    string
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between them
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveRun journals a run and its rows. Saving a run id twice is a no-op and
// reports false, so redelivered events are harmless.
func (r *SQLiteRepository) SaveRun(ctx context.Context, run Run) (bool, error) {
	diag, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return false, fmt.Errorf("marshal diagnostics: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO report_runs
			(run_id, entity_id, generated_at, duration_ms, cells, dropped, diagnostics)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.EntityID, formatTime(run.GeneratedAt), run.DurationMS,
		len(run.Rows), run.Diagnostics.Dropped.Total(), string(diag))
	if err != nil {
		return false, fmt.Errorf("insert run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO report_rows
			(run_id, year, month, unit, revenue, object_count, expense_total,
			 sub_account_expense_total, expense_by_category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return false, fmt.Errorf("prepare row insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range run.Rows {
		byCat, err := json.Marshal(row.Cell.ExpenseByCategory)
		if err != nil {
			return false, fmt.Errorf("marshal categories: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, run.RunID, row.Year, row.Month, row.Unit,
			row.Cell.Revenue, row.Cell.ObjectCount, row.Cell.ExpenseTotal,
			row.Cell.SubAccountExpenseTotal, string(byCat)); err != nil {
			return false, fmt.Errorf("insert row %d/%d %s: %w", row.Month, row.Year, row.Unit, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit run: %w", err)
	}

	slog.InfoContext(ctx, "Report run journaled",
		"run_id", run.RunID,
		"entity_id", run.EntityID,
		"rows", len(run.Rows))

	return true, nil
}

const summaryColumns = `run_id, entity_id, generated_at, duration_ms, cells, dropped,
	export_status, export_attempts, export_error`

// GetRun loads a run with its rows ordered by year, month and unit.
func (r *SQLiteRepository) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		s    RunSummary
		diag string
	)
	row := r.db.QueryRowContext(ctx, `SELECT `+summaryColumns+`, diagnostics
		FROM report_runs WHERE run_id = ?`, runID)
	if err := scanSummary(row, &s, &diag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
		}
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	run := &Run{
		RunID:          s.RunID,
		EntityID:       s.EntityID,
		GeneratedAt:    s.GeneratedAt,
		DurationMS:     s.DurationMS,
		ExportStatus:   s.ExportStatus,
		ExportAttempts: s.ExportAttempts,
		ExportError:    s.ExportError,
	}
	if err := json.Unmarshal([]byte(diag), &run.Diagnostics); err != nil {
		return nil, fmt.Errorf("decode diagnostics of %s: %w", runID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT year, month, unit, revenue, object_count, expense_total,
		       sub_account_expense_total, expense_by_category
		FROM report_rows WHERE run_id = ?
		ORDER BY year, month, unit`, runID)
	if err != nil {
		return nil, fmt.Errorf("get rows of %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cr    core.Row
			byCat string
		)
		if err := rows.Scan(&cr.Year, &cr.Month, &cr.Unit, &cr.Cell.Revenue, &cr.Cell.ObjectCount,
			&cr.Cell.ExpenseTotal, &cr.Cell.SubAccountExpenseTotal, &byCat); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(byCat), &cr.Cell.ExpenseByCategory); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
		run.Rows = append(run.Rows, cr)
	}
	return run, rows.Err()
}

// ListRuns returns the latest runs first. An empty entityID lists every entity.
func (r *SQLiteRepository) ListRuns(ctx context.Context, entityID string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + summaryColumns + ` FROM report_runs`
	args := []any{}
	if entityID != "" {
		query += ` WHERE entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY generated_at DESC, run_id LIMIT ?`
	args = append(args, limit)

	return r.querySummaries(ctx, query, args...)
}

// ClaimPendingExports moves up to limit pending runs to processing and
// returns them oldest first.
func (r *SQLiteRepository) ClaimPendingExports(ctx context.Context, limit int) ([]RunSummary, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+summaryColumns+` FROM report_runs
		WHERE export_status = ? ORDER BY generated_at LIMIT ?`, ExportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending exports: %w", err)
	}
	var claimed []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := scanSummary(rows, &s, nil); err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range claimed {
		if err := setStatus(ctx, tx, claimed[i].RunID, ExportProcessing, ""); err != nil {
			return nil, err
		}
		claimed[i].ExportStatus = ExportProcessing
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

// MarkExported records a successful export.
func (r *SQLiteRepository) MarkExported(ctx context.Context, runID string) error {
	return setStatus(ctx, r.db, runID, ExportDone, "")
}

// MarkExportAttemptFailed counts a failed attempt. The run goes back to
// pending, or to failed once maxAttempts is reached.
func (r *SQLiteRepository) MarkExportAttemptFailed(ctx context.Context, runID, reason string, maxAttempts int) (ExportStatus, error) {
	var attempts int
	if err := r.db.QueryRowContext(ctx, `
		UPDATE report_runs
		SET export_attempts = export_attempts + 1, export_error = ?, updated_at = ?
		WHERE run_id = ?
		RETURNING export_attempts`, reason, formatTime(time.Now()), runID).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("mark export failed %s: %w", runID, ErrRunNotFound)
		}
		return "", fmt.Errorf("mark export failed %s: %w", runID, err)
	}

	status := ExportPending
	if attempts >= maxAttempts {
		status = ExportFailed
	}
	if err := setStatus(ctx, r.db, runID, status, reason); err != nil {
		return "", err
	}
	return status, nil
}

// ResetStaleProcessing returns runs left in processing by a crashed worker
// to the queue.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) (int64, error) {
	return r.exec(ctx, `UPDATE report_runs SET export_status = ?, updated_at = ?
		WHERE export_status = ?`, ExportPending, formatTime(time.Now()), ExportProcessing)
}

// RetryFailedExports re-queues every failed export with a fresh attempt count.
func (r *SQLiteRepository) RetryFailedExports(ctx context.Context) (int64, error) {
	return r.exec(ctx, `UPDATE report_runs
		SET export_status = ?, export_attempts = 0, export_error = '', updated_at = ?
		WHERE export_status = ?`, ExportPending, formatTime(time.Now()), ExportFailed)
}

// DeleteRunsBefore removes finished runs generated before cutoff.
func (r *SQLiteRepository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const finished = `generated_at < ? AND export_status IN ('done', 'failed')`
	ts := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx, `DELETE FROM report_rows WHERE run_id IN
		(SELECT run_id FROM report_runs WHERE `+finished+`)`, ts); err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM report_runs WHERE `+finished, ts)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

// ExportStats counts runs per export status.
func (r *SQLiteRepository) ExportStats(ctx context.Context) (map[ExportStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT export_status, COUNT(*) FROM report_runs GROUP BY export_status`)
	if err != nil {
		return nil, fmt.Errorf("export stats: %w", err)
	}
	defer rows.Close()

	stats := map[ExportStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[ExportStatus(status)] = n
	}
	return stats, rows.Err()
}

func (r *SQLiteRepository) querySummaries(ctx context.Context, query string, args ...any) ([]RunSummary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := scanSummary(rows, &s, nil); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setStatus(ctx context.Context, db execer, runID string, status ExportStatus, reason string) error {
	res, err := db.ExecContext(ctx, `UPDATE report_runs
		SET export_status = ?, export_error = ?, updated_at = ? WHERE run_id = ?`,
		status, reason, formatTime(time.Now()), runID)
	if err != nil {
		return fmt.Errorf("set export status of %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set export status of %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner, s *RunSummary, diag *string) error {
	var (
		generatedAt string
		status      string
	)
	dest := []any{&s.RunID, &s.EntityID, &generatedAt, &s.DurationMS, &s.Cells, &s.Dropped,
		&status, &s.ExportAttempts, &s.ExportError}
	if diag != nil {
		dest = append(dest, diag)
	}
	if err := row.Scan(dest...); err != nil {
		return err
	}
	t, err := time.Parse(timeLayout, strings.TrimSpace(generatedAt))
	if err != nil {
		return fmt.Errorf("parse generated_at %q: %w", generatedAt, err)
	}
	s.GeneratedAt = t
	s.ExportStatus = ExportStatus(status)
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
