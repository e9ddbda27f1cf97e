// Package config provides configuration structures and loading logic for the
// extractor.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polisai/archextract/pkg/architecture"
	"github.com/polisai/archextract/pkg/demand"
	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/hazard"
	"github.com/polisai/archextract/pkg/inference"
	"github.com/polisai/archextract/pkg/ingest"
	"github.com/polisai/archextract/pkg/policy"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARCHEXTRACT_"

// Config holds the global configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Demand    DemandConfig    `yaml:"demand"`
	Export    ExportConfig    `yaml:"export"`
	Policy    PolicyConfig    `yaml:"policy"`
	Storage   StorageConfig   `yaml:"storage"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Pretty bool   `yaml:"pretty"`
}

// TelemetryConfig holds configuration for OpenTelemetry and the metrics
// endpoint. An empty OTLPEndpoint disables span export.
type TelemetryConfig struct {
	ServiceName    string            `yaml:"service_name"`
	Environment    string            `yaml:"environment"`
	OTLPEndpoint   string            `yaml:"otlp_endpoint"`
	Insecure       bool              `yaml:"insecure"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	MetricsAddress string            `yaml:"metrics_address"`
}

// IngestConfig controls how trace batches are read into the model.
type IngestConfig struct {
	// Format forces a trace format; empty detects it per file.
	Format            string   `yaml:"format"`
	IgnorePattern     string   `yaml:"ignore_pattern"`
	CircuitBreakerTag string   `yaml:"circuit_breaker_tag"`
	LoadBalancerTag   string   `yaml:"load_balancer_tag"`
	HostTags          []string `yaml:"host_tags"`
}

// AnalysisConfig tunes inference, validation and hazard analysis.
type AnalysisConfig struct {
	LoadBalancerTolerance float64 `yaml:"lb_tolerance"`
	DeviationThreshold    float64 `yaml:"deviation_threshold"`
	OutlierFactor         float64 `yaml:"outlier_factor"`
	ValidationMode        string  `yaml:"validation_mode"`
	CycleMode             string  `yaml:"cycle_mode"`
	Parallelism           int     `yaml:"parallelism"`
	Hazards               bool    `yaml:"hazards"`
}

// DemandConfig controls the resource demand estimator input.
type DemandConfig struct {
	CPUUtilization float64       `yaml:"cpu_utilization"`
	Granularity    time.Duration `yaml:"granularity"`
	Dir            string        `yaml:"dir"`
}

// ExportConfig controls the architecture export.
type ExportConfig struct {
	Type        string `yaml:"type"`
	Lightweight bool   `yaml:"lightweight"`
	Pretty      bool   `yaml:"pretty"`
	Output      string `yaml:"output"`
}

// PolicyConfig controls Rego model rules.
type PolicyConfig struct {
	Enabled bool `yaml:"enabled"`
	// Enforce makes violations invalidate the run instead of only
	// reporting them.
	Enforce bool `yaml:"enforce"`
	// Modules are extra .rego files evaluated with the built-in rules.
	Modules    []string `yaml:"modules,omitempty"`
	Entrypoint string   `yaml:"entrypoint"`
	Posture    string   `yaml:"posture"`
	// CacheSize bounds cached rule results; zero disables caching.
	CacheSize int `yaml:"cache_size"`
}

// StorageConfig controls the run store.
type StorageConfig struct {
	Retention int `yaml:"retention"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			ServiceName:    "archextract",
			Environment:    "development",
			MetricsAddress: ":9464",
		},
		Ingest: IngestConfig{
			CircuitBreakerTag: ingest.DefaultCircuitBreakerTag,
			LoadBalancerTag:   ingest.DefaultLoadBalancerTag,
			HostTags:          append([]string(nil), ingest.DefaultHostTags...),
		},
		Analysis: AnalysisConfig{
			LoadBalancerTolerance: inference.DefaultLoadBalancerTolerance,
			DeviationThreshold:    hazard.DefaultDeviationThreshold,
			OutlierFactor:         hazard.DefaultOutlierFactor,
			ValidationMode:        string(domain.ValidationCollectAll),
			CycleMode:             string(domain.CycleAll),
			Hazards:               true,
		},
		Demand: DemandConfig{
			CPUUtilization: demand.DefaultCPUUtilization,
			Granularity:    demand.DefaultGranularity,
			Dir:            "demand-input",
		},
		Export: ExportConfig{Type: string(architecture.ExportJSON)},
		Policy: PolicyConfig{
			Enabled:    true,
			Entrypoint: "archextract/violations",
			Posture:    string(policy.ModeFailClosed),
			CacheSize:  64,
		},
		Storage: StorageConfig{Retention: 16},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			*dst = val
		}
	}
	var errs []string
	float := func(name string, dst *float64) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q", EnvPrefix, name, val))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s=%q", EnvPrefix, name, val))
				return
			}
			*dst = b
		}
	}

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	str("OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	boolean("OTLP_INSECURE", &cfg.Telemetry.Insecure)
	str("METRICS_ADDR", &cfg.Telemetry.MetricsAddress)
	str("ENVIRONMENT", &cfg.Telemetry.Environment)

	str("FORMAT", &cfg.Ingest.Format)
	str("IGNORE_PATTERN", &cfg.Ingest.IgnorePattern)

	float("LB_TOLERANCE", &cfg.Analysis.LoadBalancerTolerance)
	float("DEVIATION_THRESHOLD", &cfg.Analysis.DeviationThreshold)
	float("OUTLIER_FACTOR", &cfg.Analysis.OutlierFactor)
	str("VALIDATION_MODE", &cfg.Analysis.ValidationMode)
	str("CYCLE_MODE", &cfg.Analysis.CycleMode)
	if val := os.Getenv(EnvPrefix + "PARALLELISM"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sPARALLELISM=%q", EnvPrefix, val))
		} else {
			cfg.Analysis.Parallelism = n
		}
	}

	str("EXPORT_TYPE", &cfg.Export.Type)
	boolean("POLICY_ENABLED", &cfg.Policy.Enabled)
	boolean("POLICY_ENFORCE", &cfg.Policy.Enforce)
	str("POLICY_POSTURE", &cfg.Policy.Posture)

	if len(errs) > 0 {
		return fmt.Errorf("%w: malformed environment overrides: %s", domain.ErrConfigInvalid, strings.Join(errs, ", "))
	}
	return nil
}

// Validate performs validation of the entire configuration, normalising
// values where there is a canonical spelling.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: logging configuration: %w", domain.ErrConfigInvalid, err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: telemetry configuration: %w", domain.ErrConfigInvalid, err)
	}
	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("%w: ingest configuration: %w", domain.ErrConfigInvalid, err)
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("%w: analysis configuration: %w", domain.ErrConfigInvalid, err)
	}
	if err := c.Demand.Validate(); err != nil {
		return fmt.Errorf("%w: demand configuration: %w", domain.ErrConfigInvalid, err)
	}
	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("%w: export configuration: %w", domain.ErrConfigInvalid, err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("%w: policy configuration: %w", domain.ErrConfigInvalid, err)
	}
	if c.Storage.Retention < 0 {
		return fmt.Errorf("%w: storage configuration: retention must not be negative", domain.ErrConfigInvalid)
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}

	format := strings.TrimSpace(strings.ToLower(c.Format))
	switch format {
	case "":
		c.Format = "json"
	case "json", "text":
		c.Format = format
	default:
		return fmt.Errorf("invalid log format %q, supported formats: json, text", c.Format)
	}
	return nil
}

// Validate performs validation of telemetry configuration
func (c *TelemetryConfig) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "archextract"
	}
	if strings.Contains(c.OTLPEndpoint, "://") {
		return fmt.Errorf("otlp_endpoint %q must be host:port without a scheme", c.OTLPEndpoint)
	}
	return nil
}

// Validate performs validation of ingest configuration
func (c *IngestConfig) Validate() error {
	if c.Format != "" {
		f, err := domain.ParseFormat(c.Format)
		if err != nil {
			return err
		}
		c.Format = string(f)
	}
	if c.IgnorePattern != "" {
		if _, err := regexp.Compile(c.IgnorePattern); err != nil {
			return fmt.Errorf("ignore_pattern: %w", err)
		}
	}
	return nil
}

// Validate performs validation of analysis configuration
func (c *AnalysisConfig) Validate() error {
	if c.LoadBalancerTolerance < 0 || c.LoadBalancerTolerance > 1 {
		return fmt.Errorf("lb_tolerance %v outside [0, 1]", c.LoadBalancerTolerance)
	}
	if c.DeviationThreshold < 0 || c.DeviationThreshold > 1 {
		return fmt.Errorf("deviation_threshold %v outside [0, 1]", c.DeviationThreshold)
	}
	if c.OutlierFactor <= 0 {
		return fmt.Errorf("outlier_factor %v must be positive", c.OutlierFactor)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism %d must not be negative", c.Parallelism)
	}
	vm, err := domain.ParseValidationMode(c.ValidationMode)
	if err != nil {
		return err
	}
	c.ValidationMode = string(vm)
	cm, err := domain.ParseCycleMode(c.CycleMode)
	if err != nil {
		return err
	}
	c.CycleMode = string(cm)
	return nil
}

// Validate performs validation of demand configuration
func (c *DemandConfig) Validate() error {
	if c.CPUUtilization < 0 || c.CPUUtilization > 1 {
		return fmt.Errorf("cpu_utilization %v outside [0, 1]", c.CPUUtilization)
	}
	if c.Granularity < time.Microsecond {
		return fmt.Errorf("granularity %s must be at least 1µs", c.Granularity)
	}
	return nil
}

// Validate performs validation of export configuration
func (c *ExportConfig) Validate() error {
	t, err := architecture.ParseExportType(c.Type)
	if err != nil {
		return err
	}
	c.Type = string(t)
	return nil
}

// Validate performs validation of policy configuration
func (c *PolicyConfig) Validate() error {
	if strings.TrimSpace(c.Posture) == "" {
		c.Posture = string(policy.ModeFailClosed)
	}
	mode, err := policy.ParseMode(c.Posture)
	if err != nil {
		return fmt.Errorf("posture: %w", err)
	}
	c.Posture = string(mode)
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size %d must not be negative", c.CacheSize)
	}
	return nil
}

// Validation returns the parsed validation mode. Call after Validate.
func (c *AnalysisConfig) Validation() domain.ValidationMode {
	return domain.ValidationMode(c.ValidationMode)
}

// Cycles returns the parsed cycle mode. Call after Validate.
func (c *AnalysisConfig) Cycles() domain.CycleMode {
	return domain.CycleMode(c.CycleMode)
}
