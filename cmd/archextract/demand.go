package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polisai/archextract/pkg/demand"
	"github.com/polisai/archextract/pkg/pipeline"
)

type demandOptions struct {
	Dir      string
	Estimate bool
}

func newDemandCmd(g *globalOptions) *cobra.Command {
	o := &demandOptions{}
	cmd := &cobra.Command{
		Use:   "demand-input [flags] <trace file or directory>...",
		Short: "Write resource demand estimator input files",
		Long: `Writes per-host CPU utilization and per-operation response time series as
CSV files, together with an operations.csv index, for an external resource
demand estimator. With --estimate the built-in busy time estimator also
updates operation demands and prints them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, shutdown, err := setup(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(shutdown, logger)

			dir := cfg.Demand.Dir
			if cmd.Flags().Changed("dir") {
				dir = o.Dir
			}

			res, err := extract(ctx, cfg, args, logger, func(opts *pipeline.Options) {
				opts.Export = nil
				opts.Analyze = false
				if o.Estimate {
					opts.Estimator = demand.BusyTimeEstimator{}
				}
			})
			if err != nil {
				return err
			}

			in := demand.BuildInput(res.Model, demand.Config{
				CPUUtilization: cfg.Demand.CPUUtilization,
				Granularity:    cfg.Demand.Granularity,
			})
			files, err := demand.WriteCSV(dir, in)
			if err != nil {
				return err
			}
			logger.Info("demand input written", "dir", dir, "files", len(files), "hosts", len(in.Hosts), "operations", len(in.Operations))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wrote %d files to %s\n", len(files), dir)
			if o.Estimate {
				for _, svc := range res.Model.SortedServices() {
					for _, op := range svc.SortedOperations() {
						fmt.Fprintf(out, "%s/%s demand=%.3f\n", svc.Name, op.Name, op.Demand)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.Dir, "dir", "d", "", "Output directory (defaults to demand.dir)")
	cmd.Flags().BoolVar(&o.Estimate, "estimate", false, "Estimate operation demands with the busy time estimator")
	return cmd
}
