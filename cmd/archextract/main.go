// Package main is the entry point for the archextract binary.
// It extracts architecture models from distributed traces.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/polisai/archextract/pkg/config"
	"github.com/polisai/archextract/pkg/logging"
	"github.com/polisai/archextract/pkg/telemetry"
)

// errInvalidModel is returned by commands that fail on an invalid model.
var errInvalidModel = errors.New("extracted model is invalid")

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	ConfigPath    string
	LogLevel      string
	Format        string
	IgnorePattern string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for archextract
func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "archextract",
		Short: "Architecture extraction from distributed traces",
		Long: `Reads Jaeger, Zipkin, OpenXTrace or OTLP trace exports and derives a
performance model of the traced system: services, instances, operations,
dependencies, retry policies and load balancing strategies.

Example:
  archextract extract --output architecture.json traces/`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.ConfigPath, "config", "c", "", "Path to configuration file (YAML)")
	flags.StringVarP(&g.LogLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.StringVarP(&g.Format, "format", "f", "", "Trace format (jaeger, zipkin, openxtrace, otlp); detected when empty")
	flags.StringVar(&g.IgnorePattern, "ignore-pattern", "", "Regular expression of operation names to skip")

	rootCmd.AddCommand(
		newExtractCmd(g),
		newValidateCmd(g),
		newDemandCmd(g),
		newWatchCmd(g),
	)
	return rootCmd
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(g *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, g); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides lets flags win over file and environment values.
func applyOverrides(cfg *config.Config, g *globalOptions) error {
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if g.Format != "" {
		cfg.Ingest.Format = g.Format
	}
	if g.IgnorePattern != "" {
		cfg.Ingest.IgnorePattern = g.IgnorePattern
	}
	return cfg.Validate()
}

// setup loads configuration and installs the logger and tracer provider.
func setup(ctx context.Context, cmd *cobra.Command, g *globalOptions) (*config.Config, *slog.Logger, telemetry.ShutdownFunc, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := logging.SetupLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})

	shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	return cfg, logger, shutdown, nil
}

func shutdownTelemetry(shutdown telemetry.ShutdownFunc, logger *slog.Logger) {
	if err := shutdown(context.Background()); err != nil {
		logger.Warn("telemetry shutdown failed", "error", err)
	}
}
