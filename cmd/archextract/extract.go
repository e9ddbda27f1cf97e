package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/polisai/archextract/pkg/architecture"
)

type extractOptions struct {
	Output      string
	ExportType  string
	Lightweight bool
	Pretty      bool
	Validate    bool
	Analyze     bool
}

func newExtractCmd(g *globalOptions) *cobra.Command {
	o := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract [flags] <trace file or directory>...",
		Short: "Extract the architecture model and export it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, g, o, args)
		},
	}

	cmd.Flags().StringVarP(&o.Output, "output", "o", "", "Output file; stdout when empty or -")
	cmd.Flags().StringVar(&o.ExportType, "export-type", "", "Export type (json, js)")
	cmd.Flags().BoolVar(&o.Lightweight, "lightweight", false, "Omit tags, logs and durations from the export")
	cmd.Flags().BoolVar(&o.Pretty, "pretty", false, "Indent the export")
	cmd.Flags().BoolVar(&o.Validate, "validate", false, "Fail when the extracted model is invalid")
	cmd.Flags().BoolVar(&o.Analyze, "analyze", true, "Run hazard analysis")
	return cmd
}

func runExtract(cmd *cobra.Command, g *globalOptions, o *extractOptions, paths []string) error {
	ctx := cmd.Context()
	cfg, logger, shutdown, err := setup(ctx, cmd, g)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(shutdown, logger)

	flags := cmd.Flags()
	if flags.Changed("export-type") {
		cfg.Export.Type = o.ExportType
	}
	if flags.Changed("lightweight") {
		cfg.Export.Lightweight = o.Lightweight
	}
	if flags.Changed("pretty") {
		cfg.Export.Pretty = o.Pretty
	}
	if flags.Changed("analyze") {
		cfg.Analysis.Hazards = o.Analyze
	}
	if flags.Changed("output") {
		cfg.Export.Output = o.Output
	}
	if _, err := architecture.ParseExportType(cfg.Export.Type); err != nil {
		return err
	}

	res, err := extract(ctx, cfg, paths, logger, nil)
	if err != nil {
		return err
	}
	printFindings(cmd.ErrOrStderr(), res)

	if out := cfg.Export.Output; out == "" || out == "-" {
		if _, err := cmd.OutOrStdout().Write(append(res.Export, '\n')); err != nil {
			return err
		}
	} else {
		//nolint:gosec // the export is not sensitive
		if err := os.WriteFile(out, res.Export, 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		logger.Info("architecture written", "path", out, "bytes", len(res.Export))
	}

	if o.Validate && !res.Valid() {
		return fmt.Errorf("%w: %d findings", errInvalidModel, len(res.Findings))
	}
	return nil
}
