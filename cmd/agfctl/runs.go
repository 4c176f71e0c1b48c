package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agfdash/internal/storage"
)

func newRunsCmd() *cobra.Command {
	var (
		dbPath   string
		entityID string
		limit    int
		asJSON   bool
		stats    bool
		retry    bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List journaled report runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				cfg, _, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				dbPath = cfg.SQLiteDBPath
			}

			repo, err := storage.NewSQLiteRepository(dbPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			out := cmd.OutOrStdout()
			if retry {
				n, err := repo.RetryFailedExports(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "requeued %d failed export(s)\n", n)
				return nil
			}
			if stats {
				return printExportStats(cmd.Context(), out, repo)
			}

			runs, err := repo.ListRuns(cmd.Context(), entityID, limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tENTITY\tGENERATED\tDURATION\tCELLS\tDROPPED\tEXPORT\tATTEMPTS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%d\n",
					r.RunID,
					r.EntityID,
					r.GeneratedAt.UTC().Format(time.RFC3339),
					time.Duration(r.DurationMS)*time.Millisecond,
					r.Cells,
					r.Dropped,
					r.ExportStatus,
					r.ExportAttempts)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "journal path (default: SQLITE_DB_PATH)")
	cmd.Flags().StringVar(&entityID, "entity", "", "only runs for this entity")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&stats, "stats", false, "print run counts per export status")
	cmd.Flags().BoolVar(&retry, "retry-failed", false, "requeue runs whose export failed permanently")
	cmd.MarkFlagsMutuallyExclusive("stats", "retry-failed")
	return cmd
}

func printExportStats(ctx context.Context, out io.Writer, repo *storage.SQLiteRepository) error {
	counts, err := repo.ExportStats(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPORT\tRUNS")
	for _, status := range []storage.ExportStatus{storage.ExportPending, storage.ExportProcessing, storage.ExportDone, storage.ExportFailed} {
		fmt.Fprintf(tw, "%s\t%d\n", status, counts[status])
	}
	return tw.Flush()
}
