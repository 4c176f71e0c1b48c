package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agfdash/internal/classify"
)

func newClassifyCmd() *cobra.Command {
	var (
		in        classify.Input
		rulesFile string
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show which category an expense line lands in and why",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := classify.Default()
			if rulesFile != "" {
				var err error
				if c, err = classify.LoadFile(rulesFile); err != nil {
					return err
				}
			}
			d := c.Explain(in)
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "category: %s\nrule:     %s (%s)\n", d.Category, d.Rule, d.Kind)
			return err
		},
	}
	cmd.Flags().StringVar(&in.CategoryID, "id", "", "category record id")
	cmd.Flags().StringVar(&in.CategoryName, "name", "", "category name")
	cmd.Flags().StringVar(&in.Description, "description", "", "expense description")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule table to use instead of the embedded one")
	return cmd
}
