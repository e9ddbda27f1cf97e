package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func TestRecordRunMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})

	ResetMetricsForTest()

	RecordRunMetrics(ctx, RunMetrics{
		RunID:         "run-1",
		Outcome:       OutcomeInvalid,
		Duration:      150 * time.Millisecond,
		Batches:       3,
		FailedBatches: 1,
		Spans:         42,
		Findings:      2,
		Hazards:       5,
	})

	metrics := collect(t, reader)

	runs, ok := metrics["archextract.runs_total"]
	require.True(t, ok, "missing runs metric")
	runData, ok := runs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, runData.DataPoints, 1)
	assert.Equal(t, int64(1), runData.DataPoints[0].Value)
	outcome, ok := runData.DataPoints[0].Attributes.Value(attribute.Key("run.outcome"))
	require.True(t, ok)
	assert.Equal(t, "invalid", outcome.AsString())

	batches := metrics["archextract.batches_total"].Data.(metricdata.Sum[int64])
	byOutcome := map[string]int64{}
	for _, dp := range batches.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("batch.outcome"))
		byOutcome[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"ok": 2, "failed": 1}, byOutcome)

	spans := metrics["archextract.spans_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(42), spans.DataPoints[0].Value)

	hazards := metrics["archextract.hazards_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(5), hazards.DataPoints[0].Value)

	hist := metrics["archextract.run.duration_ms"].Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.Equal(t, 150.0, hist.DataPoints[0].Sum)
}

func TestRecordFindingsEvent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "pipeline.run")
	RecordFindingsEvent(span, false, 3, 1, 4)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "model.assessed", events[0].Name)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range events[0].Attributes {
		attrs[kv.Key] = kv.Value
	}
	assert.False(t, attrs["model.valid"].AsBool())
	assert.Equal(t, int64(3), attrs["model.findings.count"].AsInt64())
	assert.Equal(t, int64(1), attrs["model.policy_violations.count"].AsInt64())
	assert.Equal(t, int64(4), attrs["model.hazards.count"].AsInt64())

	// Non-recording spans are ignored.
	RecordFindingsEvent(nil, true, 0, 0, 0)
}
