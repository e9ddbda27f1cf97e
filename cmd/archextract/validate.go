package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polisai/archextract/pkg/pipeline"
)

func newValidateCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [flags] <trace file or directory>...",
		Short: "Validate the extracted model and report findings",
		Long: `Extracts the model, runs model, cycle and policy validation and prints
every finding. Exits non-zero when the model is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, shutdown, err := setup(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(shutdown, logger)

			res, err := extract(ctx, cfg, args, logger, func(o *pipeline.Options) {
				o.Export = nil
				o.Analyze = false
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printFindings(out, res)
			stats := res.Model.Stats()
			fmt.Fprintf(out, "services=%d operations=%d dependencies=%d findings=%d valid=%t\n",
				stats.Services, stats.Operations, stats.Dependencies, len(res.Findings), res.Valid())

			if !res.Valid() {
				return errInvalidModel
			}
			return nil
		},
	}
}
