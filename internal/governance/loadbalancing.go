package governance

import (
	"fmt"
	"strings"
)

// LoadBalancingStrategy classifies how callers pick a service instance.
type LoadBalancingStrategy string

const (
	// StrategyUnknown means no classification was made. Downstream consumers
	// treat it as random selection.
	StrategyUnknown        LoadBalancingStrategy = "unknown"
	StrategyRandom         LoadBalancingStrategy = "random"
	StrategyRoundRobin     LoadBalancingStrategy = "round_robin"
	StrategyRoundRobinFast LoadBalancingStrategy = "round_robin_fast"
	StrategyUtilization    LoadBalancingStrategy = "utilization"
)

// ParseLoadBalancingStrategy accepts the canonical names plus the camel and
// dashed spellings seen in trace tags.
func ParseLoadBalancingStrategy(raw string) (LoadBalancingStrategy, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case "", "unknown":
		return StrategyUnknown, nil
	case "random":
		return StrategyRandom, nil
	case "round_robin", "roundrobin", "rr":
		return StrategyRoundRobin, nil
	case "round_robin_fast", "roundrobinfast":
		return StrategyRoundRobinFast, nil
	case "utilization", "utilisation", "least_utilized":
		return StrategyUtilization, nil
	default:
		return StrategyUnknown, fmt.Errorf("unknown load balancing strategy %q", raw)
	}
}

// Known reports whether the strategy carries a classification.
func (s LoadBalancingStrategy) Known() bool {
	return s != StrategyUnknown && s != ""
}

// Effective returns the strategy consumers should apply.
func (s LoadBalancingStrategy) Effective() LoadBalancingStrategy {
	if !s.Known() {
		return StrategyRandom
	}
	return s
}
