package inference

import "github.com/polisai/archextract/pkg/model"

// CalculateProbabilities sets every dependency's probability to
// |calling spans that invoked it| / |spans of the calling operation|,
// clamped to [0,1]. Dependencies without observations keep their value.
// The result depends only on observed span sets, so reruns are stable.
func CalculateProbabilities(m *model.Model) {
	for _, svc := range m.Services {
		calculateServiceProbabilities(svc)
	}
}

func calculateServiceProbabilities(svc *model.Service) {
	for _, op := range svc.Operations {
		for _, dep := range op.Dependencies {
			dep.Probability = Probability(len(dep.CallerSpans), len(op.Spans), dep.Probability)
		}
	}
}

// Probability computes calls/spans clamped to [0,1], returning fallback when
// either count is zero.
func Probability(calls, spans int, fallback float64) float64 {
	if calls == 0 || spans == 0 {
		return fallback
	}
	p := float64(calls) / float64(spans)
	if p > 1 {
		return 1
	}
	return p
}
