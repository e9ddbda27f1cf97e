package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/ingest"
	"github.com/polisai/archextract/pkg/model"
)

const jaegerJSON = `{"data": [{
  "traceID": "t1",
  "spans": [
    {"traceID": "t1", "spanID": "a", "operationName": "GET /", "references": [], "startTime": 1000, "duration": 500, "tags": [], "processID": "p1"},
    {"traceID": "t1", "spanID": "b", "operationName": "add", "references": [{"refType": "CHILD_OF", "traceID": "t1", "spanID": "a"}],
     "startTime": 1100, "duration": 200, "tags": [{"key": "http.status_code", "type": "int64", "value": 503}], "processID": "p2"}
  ],
  "processes": {
    "p1": {"serviceName": "frontend", "tags": [{"key": "hostname", "value": "fe-1"}]},
    "p2": {"serviceName": "cart", "tags": [{"key": "hostname", "value": "cart-1"}]}
  }
}]}`

const zipkinJSON = `[[
  {"traceId": "t1", "id": "a", "name": "GET /", "timestamp": 1000, "duration": 500, "localEndpoint": {"serviceName": "frontend", "ipv4": "10.0.0.1"}},
  {"traceId": "t1", "id": "b", "parentId": "a", "name": "add", "timestamp": 1100, "duration": 200, "localEndpoint": {"serviceName": "cart", "ipv4": "10.0.0.2"}, "tags": {"error": "503"}}
]]`

const xtraceJSON = `{"rootOfTrace": {
  "identifier": "x1", "application": "frontend", "businessTransaction": "GET /", "host": "fe-1",
  "rootOfSubTrace": {"timestamp": 1, "responseTime": 500000, "children": [
    {"targetSubTrace": {"application": "cart", "businessTransaction": "add", "host": "cart-1",
      "rootOfSubTrace": {"timestamp": 1, "responseTime": 200000, "failed": true}}}
  ]}
}}`

const otlpJSON = `{"resourceSpans": [{
  "resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "frontend"}}]},
  "scopeSpans": [{"spans": [{
    "traceId": "5b8efff798038103d269b633813fc60c",
    "spanId": "eee19b7ec3c1b174",
    "name": "GET /",
    "startTimeUnixNano": "1000000",
    "endTimeUnixNano": "1500000"
  }]}]
}]}`

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data string
		want domain.Format
	}{
		{"jaeger", jaegerJSON, domain.FormatJaeger},
		{"zipkin nested", zipkinJSON, domain.FormatZipkin},
		{"zipkin flat", `[{"traceId": "t", "id": "a"}]`, domain.FormatZipkin},
		{"openxtrace object", xtraceJSON, domain.FormatOpenXTrace},
		{"openxtrace list", `[{"rootOfTrace": {}}]`, domain.FormatOpenXTrace},
		{"otlp", otlpJSON, domain.FormatOTLP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectRejects(t *testing.T) {
	_, err := Detect([]byte("   "))
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)

	_, err = Detect([]byte("[]"))
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)

	_, err = Detect([]byte(`{"hello": 1}`))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, err = Detect([]byte(`"text"`))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestDecodedFormatsIngestAlike(t *testing.T) {
	for _, data := range []string{jaegerJSON, zipkinJSON, xtraceJSON} {
		b, err := Decode([]byte(data), "")
		require.NoError(t, err)

		m := model.New()
		_, err = ingest.Ingest(m, b, ingest.DefaultOptions())
		require.NoError(t, err, "format %s", b.Format())

		op := m.Operation("frontend", "GET /")
		require.NotNil(t, op, "format %s", b.Format())
		assert.NotNil(t, op.Dependency("cart", "add"), "format %s", b.Format())
	}
}

func TestDecodeOTLPJSONHexIDs(t *testing.T) {
	b, err := Decode([]byte(otlpJSON), domain.FormatOTLP)
	require.NoError(t, err)

	otlp, ok := b.(ingest.OTLPBatch)
	require.True(t, ok)
	require.Len(t, otlp.ResourceSpans, 1)
	span := otlp.ResourceSpans[0].GetScopeSpans()[0].GetSpans()[0]
	assert.Len(t, span.GetTraceId(), 16)
	assert.Len(t, span.GetSpanId(), 8)
	assert.Equal(t, byte(0x5b), span.GetTraceId()[0])

	m := model.New()
	_, err = ingest.Ingest(m, b, ingest.DefaultOptions())
	require.NoError(t, err)
	op := m.Operation("frontend", "GET /")
	require.NotNil(t, op)
	assert.True(t, op.HasSpan("5b8efff798038103d269b633813fc60c/eee19b7ec3c1b174"))
}

func TestDecodeExplicitFormatMismatch(t *testing.T) {
	_, err := Decode([]byte(jaegerJSON), domain.FormatZipkin)
	assert.Error(t, err)

	_, err = Decode([]byte(jaegerJSON), domain.Format("csv"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func otlpProto(t *testing.T) []byte {
	t.Helper()
	td := &tracepb.TracesData{ResourceSpans: []*tracepb.ResourceSpans{{
		Resource: &resourcepb.Resource{Attributes: []*commonpb.KeyValue{{
			Key:   "service.name",
			Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "frontend"}},
		}}},
		ScopeSpans: []*tracepb.ScopeSpans{{Spans: []*tracepb.Span{{
			TraceId:           []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
			SpanId:            []byte{1, 2, 3, 4, 5, 6, 7, 8},
			Name:              "GET /",
			StartTimeUnixNano: 1_000_000,
			EndTimeUnixNano:   2_000_000,
		}}}},
	}}}
	data, err := proto.Marshal(td)
	require.NoError(t, err)
	return data
}

func TestLoadKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
	write("b-zipkin.json", zipkinJSON)
	write("a-jaeger.json", jaegerJSON)
	write("notes.txt", "ignored")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c-otlp.pb"), otlpProto(t), 0o644))

	extra := filepath.Join(t.TempDir(), "x.json")
	require.NoError(t, os.WriteFile(extra, []byte(xtraceJSON), 0o644))

	files, err := Load(context.Background(), []string{dir, extra}, "")
	require.NoError(t, err)
	require.Len(t, files, 4)
	assert.Equal(t, domain.FormatJaeger, files[0].Format)
	assert.Equal(t, domain.FormatZipkin, files[1].Format)
	assert.Equal(t, domain.FormatOTLP, files[2].Format)
	assert.Equal(t, domain.FormatOpenXTrace, files[3].Format)
	assert.Len(t, Batches(files), 4)
}

func TestLoadReportsPath(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"nope": true}`), 0o644))

	_, err := Load(context.Background(), []string{bad}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "bad.json")

	_, err = Load(context.Background(), []string{filepath.Join(dir, "missing.json")}, "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
