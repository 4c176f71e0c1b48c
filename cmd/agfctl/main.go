// Command agfctl runs the dashboard pipeline and inspects the run journal
// from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agfdash/internal/cli"
	"agfdash/internal/config"
	applog "agfdash/internal/log"
)

func main() {
	cli.LoadEnvFile()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agfctl",
		Short:         "AGF dashboard tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "override LOG_LEVEL")

	root.AddCommand(newReportCmd(), newRunsCmd(), newClassifyCmd(), newSheetsAuthCmd())
	return root
}

// loadConfig reads configuration without exiting, so commands can report
// errors through cobra.
func loadConfig(cmd *cobra.Command) (*config.Config, *applog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	// Logs go to stderr; stdout carries the command output.
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: applog.ComponentApp,
		Output:    cmd.ErrOrStderr(),
	})
	applog.SetDefault(logger)
	return cfg, logger, nil
}
