package ingest

import (
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/polisai/archextract/pkg/domain"
)

// Batch is one decoded trace payload. The set of implementations is closed.
type Batch interface {
	Format() domain.Format
	isBatch()
}

// JaegerBatch is the Jaeger query API payload: traces with a process table.
type JaegerBatch struct {
	Data []JaegerTrace `json:"data"`
}

type JaegerTrace struct {
	TraceID   string                   `json:"traceID"`
	Spans     []JaegerSpan             `json:"spans"`
	Processes map[string]JaegerProcess `json:"processes"`
}

type JaegerSpan struct {
	TraceID       string            `json:"traceID"`
	SpanID        string            `json:"spanID"`
	OperationName string            `json:"operationName"`
	References    []JaegerReference `json:"references"`
	// StartTime and Duration are microseconds.
	StartTime int64            `json:"startTime"`
	Duration  int64            `json:"duration"`
	Tags      []JaegerKeyValue `json:"tags"`
	Logs      []JaegerLog      `json:"logs"`
	ProcessID string           `json:"processID"`
}

type JaegerReference struct {
	RefType string `json:"refType"`
	TraceID string `json:"traceID"`
	SpanID  string `json:"spanID"`
}

type JaegerProcess struct {
	ServiceName string           `json:"serviceName"`
	Tags        []JaegerKeyValue `json:"tags"`
}

type JaegerKeyValue struct {
	Key   string `json:"key"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value"`
}

type JaegerLog struct {
	Timestamp int64            `json:"timestamp"`
	Fields    []JaegerKeyValue `json:"fields"`
}

func (JaegerBatch) Format() domain.Format { return domain.FormatJaeger }
func (JaegerBatch) isBatch()              {}

// ZipkinBatch is a flat list of Zipkin v2 spans, possibly spanning traces.
type ZipkinBatch struct {
	Spans []ZipkinSpan
}

type ZipkinSpan struct {
	TraceID  string `json:"traceId"`
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
	// Timestamp and Duration are microseconds.
	Timestamp      int64              `json:"timestamp"`
	Duration       int64              `json:"duration"`
	LocalEndpoint  *ZipkinEndpoint    `json:"localEndpoint,omitempty"`
	RemoteEndpoint *ZipkinEndpoint    `json:"remoteEndpoint,omitempty"`
	Annotations    []ZipkinAnnotation `json:"annotations,omitempty"`
	Tags           map[string]string  `json:"tags,omitempty"`
}

type ZipkinEndpoint struct {
	ServiceName string `json:"serviceName,omitempty"`
	IPv4        string `json:"ipv4,omitempty"`
	IPv6        string `json:"ipv6,omitempty"`
	Port        int    `json:"port,omitempty"`
}

type ZipkinAnnotation struct {
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

func (ZipkinBatch) Format() domain.Format { return domain.FormatZipkin }
func (ZipkinBatch) isBatch()              {}

// OpenXTraceBatch is a list of OPEN.xtrace call trees.
type OpenXTraceBatch struct {
	Traces []XTrace
}

type XTrace struct {
	RootOfTrace *XSubTrace `json:"rootOfTrace"`
}

// XSubTrace is the part of a trace executed by one application instance.
type XSubTrace struct {
	Identifier          string    `json:"identifier,omitempty"`
	Application         string    `json:"application"`
	BusinessTransaction string    `json:"businessTransaction"`
	Host                string    `json:"host"`
	Port                *int      `json:"port,omitempty"`
	RootOfSubTrace      XCallable `json:"rootOfSubTrace"`
}

// XCallable is the entry node of a sub trace. Timestamp is epoch
// milliseconds and ResponseTime nanoseconds.
type XCallable struct {
	Timestamp      int64    `json:"timestamp"`
	ResponseTime   int64    `json:"responseTime"`
	Failed         bool     `json:"failed,omitempty"`
	CircuitBreaker string   `json:"additionalInformation.pattern.circuitBreaker,omitempty"`
	LoadBalancer   string   `json:"additionalInformation.pattern.loadBalancer,omitempty"`
	Labels         []string `json:"labels,omitempty"`
	Children       []XChild `json:"children,omitempty"`
}

// XChild is a remote invocation leading into another sub trace.
type XChild struct {
	TargetSubTrace *XSubTrace `json:"targetSubTrace"`
}

func (OpenXTraceBatch) Format() domain.Format { return domain.FormatOpenXTrace }
func (OpenXTraceBatch) isBatch()              {}

// OTLPBatch carries OpenTelemetry resource spans.
type OTLPBatch struct {
	ResourceSpans []*tracepb.ResourceSpans
}

func (OTLPBatch) Format() domain.Format { return domain.FormatOTLP }
func (OTLPBatch) isBatch()              {}
