package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"agfdash/internal/amqp"
	"agfdash/internal/cli"
	"agfdash/internal/core"
)

func newReportCmd() *cobra.Command {
	var (
		entityID string
		pretty   bool
		publish  bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the dashboard payload for one entity and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(entityID) == "" {
				return core.ErrMissingEntityID
			}
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			recordStore, cleanup, err := cli.NewRecordStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			classifier, err := cli.LoadClassifier(cfg)
			if err != nil {
				return err
			}

			var publisher *amqp.Client
			if publish {
				if cfg.AMQPURL == "" {
					return errors.New("--publish needs AMQP_URL")
				}
				if publisher = cli.NewPublisher(cfg, logger); publisher != nil {
					defer publisher.Close()
				}
			}

			res, err := cli.NewReportService(cfg, recordStore, classifier, publisher, logger).Build(ctx, entityID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(res.Payload)
		},
	}
	cmd.Flags().StringVar(&entityID, "entity", "", "entity id (empresa_id)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	cmd.Flags().BoolVar(&publish, "publish", false, "announce the run on AMQP like the server does")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}
