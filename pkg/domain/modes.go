package domain

import (
	"fmt"
	"strings"
)

// Format identifies an external trace encoding.
type Format string

const (
	// FormatJaeger is a span list with a process table.
	FormatJaeger Format = "jaeger"
	// FormatZipkin is a span list with local and remote endpoints.
	FormatZipkin Format = "zipkin"
	// FormatOpenXTrace is a nested call tree.
	FormatOpenXTrace Format = "openxtrace"
	// FormatOTLP is the OpenTelemetry protocol trace encoding.
	FormatOTLP Format = "otlp"
)

// Formats lists every supported trace format.
func Formats() []Format {
	return []Format{FormatJaeger, FormatZipkin, FormatOpenXTrace, FormatOTLP}
}

// ParseFormat normalises a user supplied format name.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatJaeger:
		return FormatJaeger, nil
	case FormatZipkin:
		return FormatZipkin, nil
	case FormatOpenXTrace, "xtrace":
		return FormatOpenXTrace, nil
	case FormatOTLP, "otel", "opentelemetry":
		return FormatOTLP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ValidationMode selects how validators report findings.
type ValidationMode string

const (
	// ValidationFailFast stops at the first finding.
	ValidationFailFast ValidationMode = "fail_fast"
	// ValidationCollectAll reports every finding.
	ValidationCollectAll ValidationMode = "collect_all"
)

// ParseValidationMode accepts the canonical names; empty selects collect-all.
func ParseValidationMode(raw string) (ValidationMode, error) {
	switch ValidationMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ValidationCollectAll:
		return ValidationCollectAll, nil
	case ValidationFailFast:
		return ValidationFailFast, nil
	default:
		return "", fmt.Errorf("%w: validation mode %q", ErrConfigInvalid, raw)
	}
}

// CycleMode selects between a fast validity check and full enumeration.
type CycleMode string

const (
	// CycleFirst stops at the first strongly connected component found.
	CycleFirst CycleMode = "first"
	// CycleAll enumerates every strongly connected component.
	CycleAll CycleMode = "all"
)

// ParseCycleMode accepts the canonical names; empty selects full enumeration.
func ParseCycleMode(raw string) (CycleMode, error) {
	switch CycleMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CycleAll:
		return CycleAll, nil
	case CycleFirst, "fast":
		return CycleFirst, nil
	default:
		return "", fmt.Errorf("%w: cycle mode %q", ErrConfigInvalid, raw)
	}
}
