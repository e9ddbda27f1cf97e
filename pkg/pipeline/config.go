package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/polisai/archextract/pkg/architecture"
	"github.com/polisai/archextract/pkg/config"
	"github.com/polisai/archextract/pkg/demand"
	"github.com/polisai/archextract/pkg/hazard"
	"github.com/polisai/archextract/pkg/inference"
	"github.com/polisai/archextract/pkg/ingest"
	"github.com/polisai/archextract/pkg/policy"
)

// OptionsFromConfig translates a validated configuration into pipeline
// options. When policy is enabled the Rego engine is compiled here, so
// module errors surface before any trace is read.
func OptionsFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Options, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := Options{
		Ingest: ingest.Options{
			IgnorePattern:     cfg.Ingest.IgnorePattern,
			CircuitBreakerTag: cfg.Ingest.CircuitBreakerTag,
			LoadBalancerTag:   cfg.Ingest.LoadBalancerTag,
			HostTags:          append([]string(nil), cfg.Ingest.HostTags...),
			Logger:            logger,
		},
		Inference: inference.Config{
			LoadBalancerTolerance: cfg.Analysis.LoadBalancerTolerance,
			Parallelism:           cfg.Analysis.Parallelism,
			Logger:                logger,
		},
		Hazard: hazard.Config{
			DeviationThreshold: cfg.Analysis.DeviationThreshold,
			OutlierFactor:      cfg.Analysis.OutlierFactor,
		},
		ValidationMode: cfg.Analysis.Validation(),
		CycleMode:      cfg.Analysis.Cycles(),
		Analyze:        cfg.Analysis.Hazards,
		Demand: demand.Config{
			CPUUtilization: cfg.Demand.CPUUtilization,
			Granularity:    cfg.Demand.Granularity,
		},
		Parallelism:   cfg.Analysis.Parallelism,
		EnforcePolicy: cfg.Policy.Enforce,
		Logger:        logger,
	}

	exportType, err := architecture.ParseExportType(cfg.Export.Type)
	if err != nil {
		return Options{}, err
	}
	opts.Export = &architecture.ExportOptions{
		Lightweight: cfg.Export.Lightweight,
		Pretty:      cfg.Export.Pretty,
		Type:        exportType,
	}

	if cfg.Policy.Enabled {
		posture, err := policy.ParseMode(cfg.Policy.Posture)
		if err != nil {
			return Options{}, err
		}
		modules, err := policyModules(cfg.Policy.Modules)
		if err != nil {
			return Options{}, err
		}
		cacheSize := cfg.Policy.CacheSize
		if cacheSize == 0 {
			cacheSize = -1
		}
		engine, err := policy.NewEngine(ctx, policy.EngineOptions{
			Entrypoint:      cfg.Policy.Entrypoint,
			Modules:         modules,
			CacheMaxEntries: cacheSize,
			Logger:          logger,
		})
		if err != nil {
			return Options{}, err
		}
		opts.Checkers = append(opts.Checkers, engine)
		opts.Posture = posture
	}
	return opts, nil
}

// policyModules returns the built-in rules plus the given files keyed by
// base name. A file named like a built-in replaces it.
func policyModules(paths []string) (map[string]string, error) {
	modules := policy.DefaultModules()
	for _, p := range paths {
		//nolint:gosec // module paths come from operator configuration
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read policy module: %w", err)
		}
		modules[filepath.Base(p)] = string(src)
	}
	return modules, nil
}
