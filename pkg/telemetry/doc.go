// Package telemetry wires OpenTelemetry exporters and meters and the
// Prometheus model gauges for the extractor.
//
// It centralises trace provider setup, records per-run counters and latency
// through the global meter provider, and exposes the latest finalized model
// as Prometheus gauges so that operators can watch an architecture drift
// between runs.
package telemetry
