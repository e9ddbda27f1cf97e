package inference

import (
	"github.com/polisai/archextract/internal/governance"
	"github.com/polisai/archextract/pkg/model"
)

// DefaultLoadBalancerTolerance is the share of misordered observations a
// round-robin history may contain.
const DefaultLoadBalancerTolerance = 0.1

type scanState int

const (
	stateBuild scanState = iota
	stateValidate
)

// DetectRoundRobin classifies an instance-selection history keyed by call
// id, replayed in timestamp order. The scan alternates between building a candidate rotation and
// validating later observations against it. A mismatch always restarts the
// build phase but only counts as an error when the unexpected instance was
// seen before and the expected one still appears later; anything else is
// treated as instances joining or leaving.
func DetectRoundRobin(history map[string]model.Selection, tolerance float64) model.Detection {
	return classify(model.SelectionSequence(history), tolerance)
}

func classify(seq []string, tolerance float64) model.Detection {
	det := model.Detection{Verdict: model.VerdictUndetermined, Observations: len(seq)}

	lastSeen := make(map[string]int)
	for i, inst := range seq {
		lastSeen[inst] = i
	}
	if len(lastSeen) < 2 || len(seq) <= len(lastSeen) {
		return det
	}

	var (
		state    = stateBuild
		rotation []string
		inRot    = make(map[string]bool)
		idx      int
		seen     = make(map[string]bool)
	)
	reset := func(inst string) {
		state = stateBuild
		rotation = []string{inst}
		inRot = map[string]bool{inst: true}
		idx = 0
	}

	for i, inst := range seq {
		if state == stateBuild {
			if !inRot[inst] {
				rotation = append(rotation, inst)
				inRot[inst] = true
				seen[inst] = true
				continue
			}
			state = stateValidate
			idx = 0
		}

		expected := rotation[idx%len(rotation)]
		if inst == expected {
			det.Matches++
			idx++
		} else {
			if seen[inst] && lastSeen[expected] > i {
				det.Errors++
			}
			reset(inst)
		}
		seen[inst] = true
		if len(rotation) > det.RotationLength {
			det.RotationLength = len(rotation)
		}
	}

	if det.Matches > 0 && det.ErrorRate() <= tolerance {
		det.Verdict = model.VerdictRoundRobin
	} else {
		det.Verdict = model.VerdictNotRoundRobin
	}
	return det
}

// ClassifyLoadBalancer runs detection on a service's balancer unless a trace
// tag already fixed its strategy. Only a round-robin verdict sets the
// strategy; every other outcome leaves it unknown.
func ClassifyLoadBalancer(lb *model.LoadBalancer, tolerance float64) model.Detection {
	if lb.Hinted {
		det := model.Detection{Verdict: model.VerdictNotRoundRobin, Observations: len(lb.History)}
		if lb.Strategy == governance.StrategyRoundRobin || lb.Strategy == governance.StrategyRoundRobinFast {
			det.Verdict = model.VerdictRoundRobin
		}
		lb.Detection = &det
		return det
	}

	det := DetectRoundRobin(lb.History, tolerance)
	lb.Detection = &det
	lb.Strategy = governance.StrategyUnknown
	if det.Verdict == model.VerdictRoundRobin {
		lb.Strategy = governance.StrategyRoundRobin
	}
	return det
}
