package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agfdash/internal/core"
	sheetsmem "agfdash/internal/sheets/memory"
	"agfdash/internal/storage"
)

func newJournal(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func saveRun(t *testing.T, repo *storage.SQLiteRepository, id string, at time.Time) {
	t.Helper()
	_, err := repo.SaveRun(context.Background(), storage.Run{
		RunID:       id,
		EntityID:    "e1",
		GeneratedAt: at,
		Rows:        []core.Row{{Year: 2024, Month: 5, Unit: "Unit X", Cell: core.Cell{Revenue: 1000}}},
	})
	require.NoError(t, err)
}

func TestDefaultExportProcessorConfig(t *testing.T) {
	config := DefaultExportProcessorConfig()

	assert.Equal(t, 10*time.Second, config.PollInterval)
	assert.Equal(t, 10, config.BatchSize)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 1*time.Hour, config.CleanupInterval)
	assert.Equal(t, 30*24*time.Hour, config.CleanupAge)
}

func TestNewExportProcessor_FillsDefaults(t *testing.T) {
	p := NewExportProcessor(nil, nil, ExportProcessorConfig{BatchSize: 20})

	assert.Equal(t, 20, p.config.BatchSize)
	assert.Equal(t, 10*time.Second, p.config.PollInterval)
	assert.Equal(t, 3, p.config.MaxRetries)
	assert.False(t, p.IsRunning())
}

func TestExportProcessor_ProcessBatch(t *testing.T) {
	repo := newJournal(t)
	exporter := sheetsmem.New()
	ctx := context.Background()
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	saveRun(t, repo, "r1", base)
	saveRun(t, repo, "r2", base.Add(time.Minute))
	saveRun(t, repo, "r3", base.Add(2*time.Minute))

	p := NewExportProcessor(repo, exporter, ExportProcessorConfig{BatchSize: 2})

	assert.Equal(t, 2, p.ProcessBatch(ctx))
	assert.Equal(t, []string{"r1", "r2"}, exporter.RunIDs())
	assert.Equal(t, 1, p.ProcessBatch(ctx))
	assert.Equal(t, 0, p.ProcessBatch(ctx))

	table, ok := exporter.Table("r3")
	require.True(t, ok)
	assert.Len(t, table, 2)

	stats, err := repo.ExportStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[storage.ExportStatus]int{storage.ExportDone: 3}, stats)
}

func TestExportProcessor_RetriesThenFails(t *testing.T) {
	repo := newJournal(t)
	exporter := sheetsmem.New()
	exporter.FailWith(errors.New("quota exceeded"))
	ctx := context.Background()
	saveRun(t, repo, "r1", time.Now())

	p := NewExportProcessor(repo, exporter, ExportProcessorConfig{MaxRetries: 2})

	assert.Equal(t, 0, p.ProcessBatch(ctx))
	run, err := repo.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, storage.ExportPending, run.ExportStatus, "first failure is retried")
	assert.Contains(t, run.ExportError, "quota exceeded")

	assert.Equal(t, 0, p.ProcessBatch(ctx))
	run, err = repo.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, storage.ExportFailed, run.ExportStatus)
	assert.Equal(t, 0, p.ProcessBatch(ctx), "failed runs are not claimed")

	exporter.FailWith(nil)
	n, err := repo.RetryFailedExports(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, p.ProcessBatch(ctx))
}

func TestExportProcessor_Cleanup(t *testing.T) {
	repo := newJournal(t)
	ctx := context.Background()
	saveRun(t, repo, "old", time.Now().Add(-48*time.Hour))
	saveRun(t, repo, "new", time.Now())

	p := NewExportProcessor(repo, sheetsmem.New(), ExportProcessorConfig{CleanupAge: 24 * time.Hour})
	assert.Equal(t, 2, p.ProcessBatch(ctx))
	p.Cleanup(ctx)

	_, err := repo.GetRun(ctx, "old")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
	_, err = repo.GetRun(ctx, "new")
	assert.NoError(t, err)
}

func TestExportProcessor_StartStop(t *testing.T) {
	repo := newJournal(t)
	exporter := sheetsmem.New()
	saveRun(t, repo, "r1", time.Now())

	p := NewExportProcessor(repo, exporter, ExportProcessorConfig{PollInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Start(ctx))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(ctx), "second start fails")

	require.Eventually(t, func() bool {
		return len(exporter.RunIDs()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
	assert.NoError(t, p.Stop(stopCtx), "stop when not running is a no-op")
}
