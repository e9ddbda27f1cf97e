package model

import (
	"sort"

	"github.com/polisai/archextract/internal/governance"
)

// Verdict is the outcome of a load balancer classification.
type Verdict string

const (
	VerdictUndetermined  Verdict = "undetermined"
	VerdictRoundRobin    Verdict = "round_robin"
	VerdictNotRoundRobin Verdict = "not_round_robin"
)

// Detection records the evidence behind a verdict.
type Detection struct {
	Verdict        Verdict
	Errors         int
	Observations   int
	Matches        int
	RotationLength int
}

// ErrorRate is Errors/Observations, or 0 without observations.
func (d Detection) ErrorRate() float64 {
	if d.Observations == 0 {
		return 0
	}
	return float64(d.Errors) / float64(d.Observations)
}

// Selection is the instance that served one call. Timestamp is
// microseconds since the epoch.
type Selection struct {
	Timestamp int64
	Instance  string
}

// LoadBalancer captures how callers select a service's instances.
type LoadBalancer struct {
	Strategy governance.LoadBalancingStrategy
	// Hinted is true when Strategy came from a trace tag.
	Hinted bool
	// History maps a call id to the instance selected for it. Calls sharing
	// a timestamp are all kept.
	History   map[string]Selection
	Detection *Detection
}

// NewLoadBalancer returns an unclassified balancer.
func NewLoadBalancer() *LoadBalancer {
	return &LoadBalancer{
		Strategy: governance.StrategyUnknown,
		History:  make(map[string]Selection),
	}
}

// Observe records that instance served call at timestamp. The first
// observation of a call id wins.
func (lb *LoadBalancer) Observe(call string, timestamp int64, instance string) {
	if instance == "" {
		return
	}
	if _, ok := lb.History[call]; ok {
		return
	}
	lb.History[call] = Selection{Timestamp: timestamp, Instance: instance}
}

// Hint applies a strategy announced by a trace tag.
func (lb *LoadBalancer) Hint(strategy governance.LoadBalancingStrategy) {
	if !strategy.Known() {
		return
	}
	lb.Strategy = strategy
	lb.Hinted = true
}

// EffectiveStrategy is the strategy consumers should apply.
func (lb *LoadBalancer) EffectiveStrategy() governance.LoadBalancingStrategy {
	return lb.Strategy.Effective()
}

// Sequence returns the instance history ordered by timestamp. Calls with
// equal timestamps are ordered by call id.
func (lb *LoadBalancer) Sequence() []string {
	return SelectionSequence(lb.History)
}

// SelectionSequence orders a selection history the way Sequence does.
func SelectionSequence(history map[string]Selection) []string {
	calls := make([]string, 0, len(history))
	for id := range history {
		calls = append(calls, id)
	}
	sort.Slice(calls, func(i, j int) bool {
		a, b := history[calls[i]], history[calls[j]]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return calls[i] < calls[j]
	})
	out := make([]string, len(calls))
	for i, id := range calls {
		out[i] = history[id].Instance
	}
	return out
}
