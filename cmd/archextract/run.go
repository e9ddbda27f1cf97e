package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/polisai/archextract/pkg/config"
	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/pipeline"
	"github.com/polisai/archextract/pkg/source"
)

// extract loads paths and runs the pipeline configured by cfg. mutate may
// adjust the options before the pipeline is built.
func extract(ctx context.Context, cfg *config.Config, paths []string, logger *slog.Logger, mutate func(*pipeline.Options)) (*pipeline.Result, error) {
	var format domain.Format
	if cfg.Ingest.Format != "" {
		f, err := domain.ParseFormat(cfg.Ingest.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	opts, err := pipeline.OptionsFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	opts.Sources = append([]string(nil), paths...)
	if mutate != nil {
		mutate(&opts)
	}

	files, err := source.Load(ctx, paths, format)
	if err != nil {
		return nil, err
	}
	logger.Debug("trace files loaded", "files", len(files))

	return pipeline.New(opts).Run(ctx, source.Batches(files))
}

// printFindings writes one line per finding.
func printFindings(w io.Writer, res *pipeline.Result) {
	for i := range res.Findings {
		fmt.Fprintln(w, res.Findings[i].Error())
	}
	if res.BatchErrors != nil {
		fmt.Fprintf(w, "%d of %d batches rejected: %v\n", res.FailedBatches, res.Batches, res.BatchErrors)
	}
}
