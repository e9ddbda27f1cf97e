package policy

import (
	"github.com/polisai/archextract/pkg/model"
)

// Snapshot renders m as the plain document Rego rules receive as input.
func Snapshot(m *model.Model) map[string]any {
	inbound := inboundCalls(m)
	services := make(map[string]any, len(m.Services))
	for _, svc := range m.SortedServices() {
		ops := make(map[string]any, len(svc.Operations))
		for _, op := range svc.SortedOperations() {
			ops[op.Name] = operationSnapshot(op, inbound[op.Key()])
		}
		tags := make(map[string]any, len(svc.Tags))
		for k, v := range svc.Tags {
			tags[k] = v
		}
		lb := map[string]any{
			"strategy": string(svc.LoadBalancer.Strategy),
			"hinted":   svc.LoadBalancer.Hinted,
		}
		if det := svc.LoadBalancer.Detection; det != nil {
			lb["verdict"] = string(det.Verdict)
			lb["error_rate"] = det.ErrorRate()
		}
		services[svc.Name] = map[string]any{
			"id":            svc.ID,
			"hosts":         append([]string{}, svc.Hosts...),
			"capacity":      svc.Capacity,
			"load_balancer": lb,
			"tags":          tags,
			"operations":    ops,
		}
	}
	return map[string]any{"services": services}
}

// callCounts tallies the calls an operation received, as recorded by its
// callers.
type callCounts struct {
	requests int
	failures int
}

func inboundCalls(m *model.Model) map[string]callCounts {
	counts := make(map[string]callCounts)
	for _, svc := range m.SortedServices() {
		for _, op := range svc.SortedOperations() {
			for _, span := range op.Retry.CallerSpans() {
				for _, call := range op.Retry.Calls(span) {
					c := counts[call.Callee]
					c.requests++
					if call.Failed {
						c.failures++
					}
					counts[call.Callee] = c
				}
			}
		}
	}
	return counts
}

func operationSnapshot(op *model.Operation, in callCounts) map[string]any {
	deps := make([]any, 0, len(op.Dependencies))
	for _, d := range op.Dependencies {
		dep := map[string]any{
			"service":     d.Service,
			"operation":   d.Operation,
			"probability": d.Probability,
			"latencies":   len(d.Latencies),
		}
		if mean, ok := d.LatencyMean(); ok {
			dep["latency_mean"] = mean
			dep["latency_std"] = d.LatencyStd()
		}
		deps = append(deps, dep)
	}
	retry := map[string]any{
		"sequences": len(op.Retry.Sequences),
		"calls":     op.Retry.HistoryLen(),
	}
	if s := op.Retry.Summary; s != nil {
		retry["strategy"] = string(s.Policy.Strategy)
		retry["base"] = s.Policy.Base
		retry["base_backoff"] = s.Policy.BaseBackoff
		if s.Policy.MaxBackoff != nil {
			retry["max_backoff"] = *s.Policy.MaxBackoff
		}
		if s.Policy.MaxTries != nil {
			retry["max_tries"] = *s.Policy.MaxTries
		}
		// Without an observed cap the longest sequence bounds the schedule.
		if schedule := s.Policy.Schedule(longestRetry(op.Retry.Sequences)); schedule != nil {
			retry["schedule"] = schedule
		}
	}
	out := map[string]any{
		"id":              op.ID,
		"demand":          op.Demand,
		"circuit_breaker": op.CircuitBreaker != nil,
		"spans":           len(op.Spans),
		"dependencies":    deps,
		"retry":           retry,
		"inbound": map[string]any{
			"requests": in.requests,
			"failures": in.failures,
		},
	}
	if cb := op.CircuitBreaker; cb != nil {
		out["circuit_breaker_trips"] = cb.Trips(in.requests, in.failures)
	}
	return out
}

// longestRetry returns the most retries seen after an initial failed call.
func longestRetry(seqs []model.RetrySequence) int {
	n := 0
	for _, seq := range seqs {
		if r := len(seq.Calls) - 1; r > n {
			n = r
		}
	}
	return n
}
