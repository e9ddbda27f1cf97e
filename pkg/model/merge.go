package model

import "maps"

// Merge folds src into dst: services merge by name, operations by name and
// dependency sets by callee. Entities new to dst receive ids from dst's
// allocator. Derived fields (probabilities, retry sequences, detections) are
// not merged; rerun inference after merging.
func Merge(dst, src *Model) {
	if dst == nil || src == nil {
		return
	}
	for _, srcSvc := range src.SortedServices() {
		dstSvc := dst.EnsureService(srcSvc.Name)
		mergeService(dstSvc, srcSvc)
	}
	dst.Valid = false
}

func mergeService(dst, src *Service) {
	for _, h := range src.Hosts {
		dst.AddHost(h)
	}
	if src.Capacity != DefaultCapacity {
		dst.Capacity = src.Capacity
	}
	for k, v := range src.Tags {
		if _, ok := dst.Tags[k]; !ok {
			dst.Tags[k] = v
		}
	}

	for call, sel := range src.LoadBalancer.History {
		dst.LoadBalancer.Observe(call, sel.Timestamp, sel.Instance)
	}
	if src.LoadBalancer.Hinted && !dst.LoadBalancer.Hinted {
		dst.LoadBalancer.Hint(src.LoadBalancer.Strategy)
	}

	for _, srcOp := range src.SortedOperations() {
		mergeOperation(dst.EnsureOperation(srcOp.Name), srcOp)
	}
}

func mergeOperation(dst, src *Operation) {
	if dst.CircuitBreaker == nil && src.CircuitBreaker != nil {
		cb := *src.CircuitBreaker
		dst.CircuitBreaker = &cb
	}
	if src.Demand != DefaultDemand {
		dst.Demand = src.Demand
	}

	fresh := make(map[string]bool, len(src.Spans))
	for id := range src.Spans {
		if dst.HasSpan(id) {
			continue
		}
		fresh[id] = true
		dst.Spans[id] = struct{}{}
		if d, ok := src.Durations[id]; ok {
			dst.Durations[id] = d
		}
		if tags, ok := src.Tags[id]; ok {
			dst.Tags[id] = maps.Clone(tags)
		}
		if logs, ok := src.Logs[id]; ok {
			dst.Logs[id] = append([]LogEntry(nil), logs...)
		}
	}

	// Samples and call history are keyed by calls already deduplicated above,
	// so only calls new to dst contribute. Response samples carry no call id;
	// they are taken whenever src brought at least one new call.
	if len(fresh) > 0 {
		for host, samples := range src.ResponseTimes {
			dst.ResponseTimes[host] = append(dst.ResponseTimes[host], samples...)
		}
	}
	for _, caller := range src.Retry.CallerSpans() {
		if !fresh[caller] {
			continue
		}
		for _, rec := range src.Retry.Calls(caller) {
			dst.Retry.Record(caller, rec)
		}
	}

	for _, srcDep := range src.Dependencies {
		added := false
		dep := dst.Dependency(srcDep.Service, srcDep.Operation)
		if dep == nil {
			dep = dst.AddDependency(srcDep.Service, srcDep.Operation, "")
			added = true
		}
		newCaller := false
		for id := range srcDep.CallerSpans {
			if _, ok := dep.CallerSpans[id]; !ok {
				dep.CallerSpans[id] = struct{}{}
				newCaller = true
			}
		}
		if added || newCaller {
			dep.Latencies = append(dep.Latencies, srcDep.Latencies...)
		}
	}
}
