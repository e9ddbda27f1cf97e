package model

import (
	"sort"

	"github.com/polisai/archextract/internal/governance"
)

// ResponseSample is one observed call on a host. Both fields are microseconds.
type ResponseSample struct {
	Timestamp    int64
	ResponseTime float64
}

// LogEntry is a timestamped span log.
type LogEntry struct {
	Timestamp int64          `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// Operation is a named unit of work exposed by a service, aggregated over
// every span carrying that name.
type Operation struct {
	ID   int
	Name string
	// Service is the owning service's name.
	Service        string
	Dependencies   []*Dependency
	CircuitBreaker *governance.CircuitBreaker
	Demand         float64
	// Spans holds the call ids observed for this operation.
	Spans         map[string]struct{}
	ResponseTimes map[string][]ResponseSample
	Retry         *Retry

	// Raw per-call diagnostics keyed by call id, used by hazard analysis and
	// the full architecture export.
	Durations map[string]float64
	Tags      map[string]map[string]any
	Logs      map[string][]LogEntry
}

func newOperation(id int, name, service string) *Operation {
	return &Operation{
		ID:            id,
		Name:          name,
		Service:       service,
		Demand:        DefaultDemand,
		Spans:         make(map[string]struct{}),
		ResponseTimes: make(map[string][]ResponseSample),
		Retry:         NewRetry(),
		Durations:     make(map[string]float64),
		Tags:          make(map[string]map[string]any),
		Logs:          make(map[string][]LogEntry),
	}
}

// Key returns the canonical "service/operation" identifier.
func (o *Operation) Key() string {
	return OperationKey(o.Service, o.Name)
}

// HasSpan reports whether a call id has been observed.
func (o *Operation) HasSpan(callID string) bool {
	_, ok := o.Spans[callID]
	return ok
}

// Observe records one call. It returns false when the call id was already
// recorded, in which case nothing changes.
func (o *Operation) Observe(callID, host string, timestamp int64, duration float64, tags map[string]any, logs []LogEntry) bool {
	if o.HasSpan(callID) {
		return false
	}
	o.Spans[callID] = struct{}{}
	o.Durations[callID] = duration
	if len(tags) > 0 {
		o.Tags[callID] = tags
	}
	if len(logs) > 0 {
		o.Logs[callID] = logs
	}
	if host != "" {
		o.ResponseTimes[host] = append(o.ResponseTimes[host], ResponseSample{Timestamp: timestamp, ResponseTime: duration})
	}
	return true
}

// AddDependency returns the dependency on service/operation, creating it if
// needed, and records callerSpan against it. At most one dependency exists
// per callee.
func (o *Operation) AddDependency(service, operation, callerSpan string) *Dependency {
	dep := o.Dependency(service, operation)
	if dep == nil {
		dep = newDependency(service, operation)
		o.Dependencies = append(o.Dependencies, dep)
	}
	if callerSpan != "" {
		dep.CallerSpans[callerSpan] = struct{}{}
	}
	return dep
}

// Dependency returns the dependency on service/operation, or nil.
func (o *Operation) Dependency(service, operation string) *Dependency {
	for _, dep := range o.Dependencies {
		if dep.Service == service && dep.Operation == operation {
			return dep
		}
	}
	return nil
}

// RemoveDependency deletes the dependency on service/operation.
func (o *Operation) RemoveDependency(service, operation string) bool {
	for i, dep := range o.Dependencies {
		if dep.Service == service && dep.Operation == operation {
			o.Dependencies = append(o.Dependencies[:i], o.Dependencies[i+1:]...)
			return true
		}
	}
	return false
}

// DurationSeries returns recorded durations ordered by call id so repeated
// analysis passes see identical input.
func (o *Operation) DurationSeries() []float64 {
	ids := o.SpanIDs()
	out := make([]float64, 0, len(ids))
	for _, id := range ids {
		if d, ok := o.Durations[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// SpanIDs returns observed call ids in lexical order.
func (o *Operation) SpanIDs() []string {
	ids := make([]string, 0, len(o.Spans))
	for id := range o.Spans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Hosts returns the hosts with response time samples in lexical order.
func (o *Operation) Hosts() []string {
	hosts := make([]string, 0, len(o.ResponseTimes))
	for h := range o.ResponseTimes {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
