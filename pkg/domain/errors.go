package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Structural errors abort ingestion of the current batch.
var (
	ErrUnknownProcess     = errors.New("unknown process reference")
	ErrUnknownService     = errors.New("unknown service reference")
	ErrMissingField       = errors.New("missing required span field")
	ErrCyclicCallTree     = errors.New("cyclic call tree")
	ErrUnsupportedFormat  = errors.New("unsupported trace format")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrEmptyBatch         = errors.New("empty trace batch")
	ErrBatchFailed        = errors.New("trace batch ingestion failed")
	ErrModelNotFound      = errors.New("model not found")
	ErrPolicyEvalFailed   = errors.New("policy evaluation failed")
	ErrEstimationFailed   = errors.New("resource demand estimation failed")
	ErrNoOperationSamples = errors.New("no response time samples")
)

// Validation kinds. These are reported as lists and never abort a run.
var (
	ErrSelfDependency      = errors.New("operation depends on itself")
	ErrCircularDependency  = errors.New("circular operation dependency")
	ErrDanglingDependency  = errors.New("dependency target does not exist")
	ErrServiceCycle        = errors.New("cycle between services")
	ErrPolicyViolation     = errors.New("model policy violation")
	ErrFitUnderdetermined  = errors.New("backoff fit is under-determined")
	ErrClassificationUnset = errors.New("load balancer classification undetermined")
)

// StructuralError reports malformed trace input. It always names the
// identifiers that could be resolved before the failure.
type StructuralError struct {
	Format    Format
	TraceID   string
	SpanID    string
	Service   string
	Operation string
	Ref       string
	Err       error
}

func (e *StructuralError) Error() string {
	parts := make([]string, 0, 6)
	if e.Format != "" {
		parts = append(parts, "format="+string(e.Format))
	}
	if e.TraceID != "" {
		parts = append(parts, "trace="+e.TraceID)
	}
	if e.SpanID != "" {
		parts = append(parts, "span="+e.SpanID)
	}
	if e.Service != "" {
		parts = append(parts, "service="+e.Service)
	}
	if e.Operation != "" {
		parts = append(parts, "operation="+e.Operation)
	}
	if e.Ref != "" {
		parts = append(parts, "ref="+e.Ref)
	}
	if len(parts) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%s)", e.Err, strings.Join(parts, " "))
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// ValidationError describes one broken structural invariant of a model or
// architecture graph.
type ValidationError struct {
	Kind            error
	Service         string
	Operation       string
	TargetService   string
	TargetOperation string
	// Nodes lists cycle members in discovery order.
	Nodes   []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	switch {
	case len(e.Nodes) > 0:
		return fmt.Sprintf("%s: [%s]", e.Kind, strings.Join(e.Nodes, ", "))
	case e.TargetService != "":
		return fmt.Sprintf("%s: %s/%s -> %s/%s", e.Kind, e.Service, e.Operation, e.TargetService, e.TargetOperation)
	default:
		return fmt.Sprintf("%s: %s/%s", e.Kind, e.Service, e.Operation)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// JoinValidation folds a list of findings into one error, or nil.
func JoinValidation(findings []ValidationError) error {
	if len(findings) == 0 {
		return nil
	}
	errs := make([]error, 0, len(findings))
	for i := range findings {
		errs = append(errs, &findings[i])
	}
	return errors.Join(errs...)
}
