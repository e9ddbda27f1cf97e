package hazard

import (
	"math"

	"github.com/polisai/archextract/pkg/model"
)

const (
	// DefaultDeviationThreshold is the filtered spread above which response
	// times count as deviating.
	DefaultDeviationThreshold = 0.5
	// DefaultOutlierFactor is the number of standard deviations beyond which
	// a sample is an outlier.
	DefaultOutlierFactor = 3.0
)

// Config holds the analyzer thresholds. Values are used as given; start from
// DefaultConfig for the usual thresholds.
type Config struct {
	DeviationThreshold float64
	OutlierFactor      float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		DeviationThreshold: DefaultDeviationThreshold,
		OutlierFactor:      DefaultOutlierFactor,
	}
}

// Screen is the outcome of screening one duration series.
type Screen struct {
	Kept     []float64
	Outliers []float64
	// Spread is 1 - min/max over Kept, or 0 when undefined.
	Spread float64
	// Spike is max(Outliers) - max(Kept) when positive.
	Spike float64
}

// ScreenSeries filters outliers from series and measures what remains.
func ScreenSeries(series []float64, factor float64) Screen {
	var s Screen
	if len(series) == 0 {
		return s
	}
	mean, std := meanStd(series)
	for _, v := range series {
		if len(series) > 1 && math.Abs(v-mean) > factor*std {
			s.Outliers = append(s.Outliers, v)
			continue
		}
		s.Kept = append(s.Kept, v)
	}
	if len(s.Kept) == 0 {
		return s
	}
	lo, hi := minMax(s.Kept)
	if hi > 0 {
		s.Spread = 1 - lo/hi
	}
	if len(s.Outliers) > 0 {
		_, top := minMax(s.Outliers)
		if d := top - hi; d > 0 {
			s.Spike = d
		}
	}
	return s
}

// Analyze screens every operation of m and returns the hazard report. Hazard
// ids are dense per report so repeated passes over an unchanged model yield
// identical reports.
func Analyze(m *model.Model, cfg Config) Report {
	ids := model.NewIDAllocator()
	report := make(Report)
	add := func(t Type, name string, value float64, fill func(*Hazard)) {
		h := newHazard(ids.Next(model.KindHazard), t, name, value)
		fill(&h)
		report[t] = append(report[t], h)
	}

	for _, svc := range m.SortedServices() {
		var spiked, deviated bool
		for _, op := range svc.SortedOperations() {
			s := ScreenSeries(op.DurationSeries(), cfg.OutlierFactor)
			edge := func(h *Hazard) { h.Edges = []int{op.ID} }
			if s.Spread > cfg.DeviationThreshold {
				add(TypeResponseTimeDeviation, op.Key(), s.Spread, edge)
				deviated = true
			}
			if s.Spike > 0 {
				add(TypeResponseTimeSpike, op.Key(), s.Spike, edge)
				spiked = true
			}
		}
		node := func(h *Hazard) { h.Nodes = []int{svc.ID} }
		if spiked {
			add(TypeServiceFailure, svc.Name, 0, node)
		}
		if deviated {
			add(TypeDecreasedServicePerformance, svc.Name, 0, node)
		}
	}
	return report
}

// meanStd returns the mean and the sample (n-1) standard deviation.
func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

func minMax(xs []float64) (float64, float64) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}
