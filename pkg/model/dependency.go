package model

import (
	"math"
	"sort"
)

// Dependency is a directed call relationship from the owning operation to the
// callee identified by Service/Operation.
type Dependency struct {
	Service     string
	Operation   string
	Probability float64
	// CallerSpans are the calling span ids that invoked the callee.
	CallerSpans map[string]struct{}
	// Latencies holds overhead samples (microseconds) contributed by
	// synthetic hops that were collapsed into this dependency.
	Latencies []float64
}

func newDependency(service, operation string) *Dependency {
	return &Dependency{
		Service:     service,
		Operation:   operation,
		Probability: 1,
		CallerSpans: make(map[string]struct{}),
	}
}

// Key returns the callee's "service/operation" identifier.
func (d *Dependency) Key() string {
	return OperationKey(d.Service, d.Operation)
}

// CallerSpanIDs returns the caller span ids in lexical order.
func (d *Dependency) CallerSpanIDs() []string {
	ids := make([]string, 0, len(d.CallerSpans))
	for id := range d.CallerSpans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddLatency records a collapsed-hop overhead sample.
func (d *Dependency) AddLatency(sample float64) {
	if sample < 0 || math.IsNaN(sample) {
		sample = 0
	}
	d.Latencies = append(d.Latencies, sample)
}

// LatencyMean returns the mean custom latency, and false when there are no
// samples.
func (d *Dependency) LatencyMean() (float64, bool) {
	if len(d.Latencies) == 0 {
		return 0, false
	}
	var sum float64
	for _, l := range d.Latencies {
		sum += l
	}
	return sum / float64(len(d.Latencies)), true
}

// LatencyStd returns the population standard deviation of the custom latency.
func (d *Dependency) LatencyStd() float64 {
	mean, ok := d.LatencyMean()
	if !ok {
		return 0
	}
	var acc float64
	for _, l := range d.Latencies {
		acc += (l - mean) * (l - mean)
	}
	return math.Sqrt(acc / float64(len(d.Latencies)))
}
