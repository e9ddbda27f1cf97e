package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/archextract/pkg/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archextract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 0.1, cfg.Analysis.LoadBalancerTolerance)
	assert.Equal(t, 0.5, cfg.Analysis.DeviationThreshold)
	assert.Equal(t, 3.0, cfg.Analysis.OutlierFactor)
	assert.Equal(t, domain.ValidationCollectAll, cfg.Analysis.Validation())
	assert.Equal(t, domain.CycleAll, cfg.Analysis.Cycles())
	assert.Equal(t, "pattern.circuitBreaker", cfg.Ingest.CircuitBreakerTag)
	assert.Equal(t, 10*time.Millisecond, cfg.Demand.Granularity)
	assert.Equal(t, "json", cfg.Export.Type)
	assert.Equal(t, "fail-closed", cfg.Policy.Posture)
	assert.True(t, cfg.Policy.Enabled)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: DEBUG
  format: text
telemetry:
  otlp_endpoint: "localhost:4317"
  insecure: true
ingest:
  format: xtrace
  ignore_pattern: "db-.*"
analysis:
  lb_tolerance: 0.2
  validation_mode: fail_fast
  cycle_mode: fast
  parallelism: 4
demand:
  granularity: 250ms
export:
  type: javascript
  lightweight: true
policy:
  posture: FAIL-OPEN
  modules: [extra.rego]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, "openxtrace", cfg.Ingest.Format)
	assert.Equal(t, "db-.*", cfg.Ingest.IgnorePattern)
	assert.Equal(t, 0.2, cfg.Analysis.LoadBalancerTolerance)
	assert.Equal(t, 0.5, cfg.Analysis.DeviationThreshold, "unset keys keep defaults")
	assert.Equal(t, domain.ValidationFailFast, cfg.Analysis.Validation())
	assert.Equal(t, domain.CycleFirst, cfg.Analysis.Cycles())
	assert.Equal(t, 4, cfg.Analysis.Parallelism)
	assert.Equal(t, 250*time.Millisecond, cfg.Demand.Granularity)
	assert.Equal(t, "js", cfg.Export.Type)
	assert.True(t, cfg.Export.Lightweight)
	assert.Equal(t, "fail-open", cfg.Policy.Posture)
	assert.Equal(t, []string{"extra.rego"}, cfg.Policy.Modules)
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	path := writeConfig(t, "analysis:\n  lb_tolerance: 0\n  deviation_threshold: 0\ndemand:\n  cpu_utilization: 0\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Zero(t, cfg.Analysis.LoadBalancerTolerance)
	assert.Zero(t, cfg.Analysis.DeviationThreshold)
	assert.Zero(t, cfg.Demand.CPUUtilization)
	assert.Equal(t, Default().Analysis.OutlierFactor, cfg.Analysis.OutlierFactor, "unset keys keep their defaults")
	assert.Equal(t, 10*time.Millisecond, cfg.Demand.Granularity)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectedErr string
	}{
		{"invalid log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"endpoint with scheme", func(c *Config) { c.Telemetry.OTLPEndpoint = "http://collector:4317" }, "without a scheme"},
		{"unknown format", func(c *Config) { c.Ingest.Format = "csv" }, "unsupported trace format"},
		{"bad ignore pattern", func(c *Config) { c.Ingest.IgnorePattern = "(" }, "ignore_pattern"},
		{"tolerance above one", func(c *Config) { c.Analysis.LoadBalancerTolerance = 1.5 }, "lb_tolerance"},
		{"negative deviation", func(c *Config) { c.Analysis.DeviationThreshold = -0.1 }, "deviation_threshold"},
		{"zero outlier factor", func(c *Config) { c.Analysis.OutlierFactor = 0 }, "outlier_factor"},
		{"negative parallelism", func(c *Config) { c.Analysis.Parallelism = -1 }, "parallelism"},
		{"unknown validation mode", func(c *Config) { c.Analysis.ValidationMode = "lenient" }, "validation mode"},
		{"unknown cycle mode", func(c *Config) { c.Analysis.CycleMode = "some" }, "cycle mode"},
		{"utilization above one", func(c *Config) { c.Demand.CPUUtilization = 2 }, "cpu_utilization"},
		{"zero granularity", func(c *Config) { c.Demand.Granularity = 0 }, "granularity"},
		{"sub-microsecond granularity", func(c *Config) { c.Demand.Granularity = 500 * time.Nanosecond }, "granularity"},
		{"negative granularity", func(c *Config) { c.Demand.Granularity = -time.Second }, "granularity"},
		{"unknown export type", func(c *Config) { c.Export.Type = "yaml" }, "unknown export type"},
		{"unknown posture", func(c *Config) { c.Policy.Posture = "fail-sometimes" }, "posture"},
		{"negative retention", func(c *Config) { c.Storage.Retention = -1 }, "retention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfigInvalid)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}

	require.NoError(t, Default().Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ARCHEXTRACT_LOG_LEVEL", "warn")
	t.Setenv("ARCHEXTRACT_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("ARCHEXTRACT_OTLP_INSECURE", "true")
	t.Setenv("ARCHEXTRACT_IGNORE_PATTERN", "istio-.*")
	t.Setenv("ARCHEXTRACT_LB_TOLERANCE", "0.25")
	t.Setenv("ARCHEXTRACT_OUTLIER_FACTOR", "2")
	t.Setenv("ARCHEXTRACT_PARALLELISM", "3")
	t.Setenv("ARCHEXTRACT_CYCLE_MODE", "first")
	t.Setenv("ARCHEXTRACT_POLICY_ENABLED", "false")

	path := writeConfig(t, "logging:\n  level: debug\nanalysis:\n  lb_tolerance: 0.05\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level, "environment beats file")
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, "istio-.*", cfg.Ingest.IgnorePattern)
	assert.Equal(t, 0.25, cfg.Analysis.LoadBalancerTolerance)
	assert.Equal(t, 2.0, cfg.Analysis.OutlierFactor)
	assert.Equal(t, 3, cfg.Analysis.Parallelism)
	assert.Equal(t, domain.CycleFirst, cfg.Analysis.Cycles())
	assert.False(t, cfg.Policy.Enabled)
}

func TestMalformedEnvironmentOverrides(t *testing.T) {
	t.Setenv("ARCHEXTRACT_LB_TOLERANCE", "a lot")
	t.Setenv("ARCHEXTRACT_PARALLELISM", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "ARCHEXTRACT_LB_TOLERANCE")
	assert.Contains(t, err.Error(), "ARCHEXTRACT_PARALLELISM")
}
