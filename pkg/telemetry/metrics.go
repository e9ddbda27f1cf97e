package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce         sync.Once
	metricsInitErr      error
	runCounter          metric.Int64Counter
	batchCounter        metric.Int64Counter
	spanCounter         metric.Int64Counter
	findingCounter      metric.Int64Counter
	hazardCounter       metric.Int64Counter
	runLatencyHistogram metric.Float64Histogram
)

// Outcome classifies a pipeline run or batch.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeInvalid Outcome = "invalid"
	OutcomeFailed  Outcome = "failed"
)

// RunMetrics captures the fields needed to record pipeline run telemetry.
type RunMetrics struct {
	RunID         string
	Outcome       Outcome
	Duration      time.Duration
	Batches       int
	FailedBatches int
	Spans         int
	Findings      int
	Hazards       int
}

// RecordRunMetrics emits counters and histograms describing one run.
func RecordRunMetrics(ctx context.Context, m RunMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("run.outcome", string(m.Outcome)))
	runCounter.Add(ctx, 1, attrs)
	if m.Duration > 0 {
		runLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)
	}

	if ok := m.Batches - m.FailedBatches; ok > 0 {
		batchCounter.Add(ctx, int64(ok), metric.WithAttributes(attribute.String("batch.outcome", string(OutcomeOK))))
	}
	if m.FailedBatches > 0 {
		batchCounter.Add(ctx, int64(m.FailedBatches), metric.WithAttributes(attribute.String("batch.outcome", string(OutcomeFailed))))
	}
	if m.Spans > 0 {
		spanCounter.Add(ctx, int64(m.Spans))
	}
	if m.Findings > 0 {
		findingCounter.Add(ctx, int64(m.Findings))
	}
	if m.Hazards > 0 {
		hazardCounter.Add(ctx, int64(m.Hazards))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(InstrumentationName)

		runCounter, metricsInitErr = meter.Int64Counter(
			"archextract.runs_total",
			metric.WithDescription("Pipeline runs partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		batchCounter, metricsInitErr = meter.Int64Counter(
			"archextract.batches_total",
			metric.WithDescription("Trace batches ingested partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		spanCounter, metricsInitErr = meter.Int64Counter(
			"archextract.spans_total",
			metric.WithDescription("Spans recorded into models"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		findingCounter, metricsInitErr = meter.Int64Counter(
			"archextract.findings_total",
			metric.WithDescription("Validation and policy findings reported"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		hazardCounter, metricsInitErr = meter.Int64Counter(
			"archextract.hazards_total",
			metric.WithDescription("Hazards identified by analysis"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		runLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"archextract.run.duration_ms",
			metric.WithDescription("Observed end-to-end pipeline latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// RecordFindingsEvent attaches a summary of the run's findings to span.
func RecordFindingsEvent(span trace.Span, valid bool, findings, violations, hazards int) {
	if span == nil || !span.IsRecording() {
		return
	}

	span.AddEvent("model.assessed", trace.WithAttributes(
		attribute.Bool("model.valid", valid),
		attribute.Int("model.findings.count", findings),
		attribute.Int("model.policy_violations.count", violations),
		attribute.Int("model.hazards.count", hazards),
	))
}
