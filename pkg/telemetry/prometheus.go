package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/archextract/pkg/hazard"
	"github.com/polisai/archextract/pkg/model"
	"github.com/polisai/archextract/pkg/storage"
)

// ModelMetrics holds the Prometheus view of the latest finalized model.
type ModelMetrics struct {
	// Model shape
	modelSize *prometheus.GaugeVec

	// Per service and operation
	serviceInstances  *prometheus.GaugeVec
	serviceRoundRobin *prometheus.GaugeVec
	retrySequences    *prometheus.GaugeVec
	dependencyProb    *prometheus.GaugeVec

	// Findings
	findings prometheus.Gauge
	hazards  *prometheus.GaugeVec

	// Runs
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	configReloads *prometheus.CounterVec
	lastRun       prometheus.Gauge

	registry *prometheus.Registry
}

// NewModelMetrics creates the model gauges on a fresh registry.
func NewModelMetrics() *ModelMetrics {
	registry := prometheus.NewRegistry()

	m := &ModelMetrics{
		modelSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "archextract_model_size",
				Help: "Size of the latest model by element kind",
			},
			[]string{"kind"},
		),

		serviceInstances: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "archextract_service_instances",
				Help: "Observed hosts per service",
			},
			[]string{"service"},
		),

		serviceRoundRobin: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "archextract_service_round_robin",
				Help: "1 when the service load balancer was classified as round robin",
			},
			[]string{"service", "strategy"},
		),

		retrySequences: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "archextract_operation_retry_sequences",
				Help: "Retry sequences detected per calling operation",
			},
			[]string{"service", "operation"},
		),

		dependencyProb: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "archextract_dependency_probability",
				Help: "Share of caller spans that invoke the dependency",
			},
			[]string{"service", "operation", "callee"},
		),

		findings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archextract_model_findings",
			Help: "Validation findings of the latest model",
		}),

		hazards: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "archextract_model_hazards",
				Help: "Hazards of the latest model by type",
			},
			[]string{"type"},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archextract_runs_total",
				Help: "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),

		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archextract_run_duration_seconds",
				Help:    "Pipeline run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archextract_config_reloads_total",
				Help: "Total number of configuration reload attempts by status",
			},
			[]string{"status"},
		),

		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archextract_last_run_timestamp_seconds",
			Help: "Unix time of the latest finalized run",
		}),

		registry: registry,
	}

	registry.MustRegister(
		m.modelSize,
		m.serviceInstances,
		m.serviceRoundRobin,
		m.retrySequences,
		m.dependencyProb,
		m.findings,
		m.hazards,
		m.runsTotal,
		m.runDuration,
		m.configReloads,
		m.lastRun,
	)

	return m
}

// ObserveRun replaces the model gauges with the contents of run.
func (m *ModelMetrics) ObserveRun(run *storage.Run) {
	if run == nil || run.Model == nil {
		return
	}
	m.modelSize.Reset()
	m.serviceInstances.Reset()
	m.serviceRoundRobin.Reset()
	m.retrySequences.Reset()
	m.dependencyProb.Reset()
	m.hazards.Reset()

	stats := run.Model.Stats()
	m.modelSize.WithLabelValues("services").Set(float64(stats.Services))
	m.modelSize.WithLabelValues("hosts").Set(float64(stats.Hosts))
	m.modelSize.WithLabelValues("operations").Set(float64(stats.Operations))
	m.modelSize.WithLabelValues("dependencies").Set(float64(stats.Dependencies))
	m.modelSize.WithLabelValues("spans").Set(float64(stats.Spans))

	for _, svc := range run.Model.SortedServices() {
		m.serviceInstances.WithLabelValues(svc.Name).Set(float64(len(svc.Hosts)))
		rr := 0.0
		if det := svc.LoadBalancer.Detection; det != nil && det.Verdict == model.VerdictRoundRobin {
			rr = 1
		}
		m.serviceRoundRobin.WithLabelValues(svc.Name, string(svc.LoadBalancer.EffectiveStrategy())).Set(rr)

		for _, op := range svc.SortedOperations() {
			m.retrySequences.WithLabelValues(svc.Name, op.Name).Set(float64(len(op.Retry.Sequences)))
			for _, dep := range op.Dependencies {
				m.dependencyProb.WithLabelValues(svc.Name, op.Name, dep.Key()).Set(dep.Probability)
			}
		}
	}

	m.findings.Set(float64(len(run.Findings)))
	for _, t := range hazard.Types() {
		m.hazards.WithLabelValues(string(t)).Set(float64(len(run.Hazards[t])))
	}
	if !run.CreatedAt.IsZero() {
		m.lastRun.Set(float64(run.CreatedAt.Unix()))
	}
}

// RecordRun counts a finished run.
func (m *ModelMetrics) RecordRun(outcome Outcome, duration time.Duration) {
	m.runsTotal.WithLabelValues(string(outcome)).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// RecordConfigReload records a configuration reload attempt.
func (m *ModelMetrics) RecordConfigReload(status string) {
	m.configReloads.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler, traced with otelhttp.
func (m *ModelMetrics) Handler() http.Handler {
	return otelhttp.NewHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}), "archextract.metrics")
}

// Registry returns the Prometheus registry.
func (m *ModelMetrics) Registry() *prometheus.Registry {
	return m.registry
}
