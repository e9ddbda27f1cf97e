package inference

import (
	"math"

	"github.com/polisai/archextract/internal/governance"
	"github.com/polisai/archextract/pkg/model"
)

const (
	// CeilingTolerance is the relative difference below which successive
	// trailing gaps are treated as a reached backoff ceiling.
	CeilingTolerance = 0.05
	// MaxUncertainty is the fit error reported for under-determined fits.
	MaxUncertainty = math.MaxFloat64

	microsPerMilli = 1000.0
	tieTolerance   = 1e-9
)

// gap is the pause before retry attempt x, in milliseconds.
type gap struct {
	x float64
	y float64
}

// Gaps returns the usable pauses between consecutive calls in milliseconds:
// end of call i to start of call i+1, skipping overlapping or non-finite
// pairs. The attempt index is preserved for each kept gap.
func Gaps(calls []model.CallRecord) []float64 {
	pts := usableGaps(calls)
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.y
	}
	return out
}

func usableGaps(calls []model.CallRecord) []gap {
	var out []gap
	for i := 0; i+1 < len(calls); i++ {
		d := (calls[i+1].Start - calls[i].End) / microsPerMilli
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			continue
		}
		out = append(out, gap{x: float64(i), y: d})
	}
	return out
}

// FitSequence estimates the backoff curve of one retry sequence. Linear and
// exponential least-squares fits are compared by mean squared error; a
// trailing run of near-constant gaps is recorded as MaxBackoff and excluded
// from the fit. Under-determined inputs degrade instead of failing:
//
//   - no usable gaps and no ceiling: no strategy, Fitted is false
//   - no gaps before the ceiling: constant linear curve at the ceiling
//   - one gap and no ceiling: constant linear curve at that gap
//   - one gap and a ceiling: two-point fit anchored at the ceiling
//
// The first two constant cases report MaxUncertainty as their error.
func FitSequence(calls []model.CallRecord) model.Fit {
	fit := model.Fit{Error: MaxUncertainty}
	if n := len(calls); n > 0 && calls[n-1].Failed {
		tries := n - 1
		fit.Policy.MaxTries = &tries
	}

	pts := usableGaps(calls)
	prefix, tail := splitCeiling(pts)
	var ceiling float64
	if len(tail) > 0 {
		ceiling = meanOf(tail)
		fit.Policy.MaxBackoff = &ceiling
	}

	switch {
	case len(prefix) == 0 && len(tail) == 0:
		return fit
	case len(prefix) == 0:
		fit.Policy.Strategy = governance.BackoffLinear
		fit.Policy.Base = 0
		fit.Policy.BaseBackoff = ceiling
	case len(prefix) == 1 && len(tail) == 0:
		fit.Policy.Strategy = governance.BackoffLinear
		fit.Policy.Base = 0
		fit.Policy.BaseBackoff = prefix[0].y
	case len(prefix) == 1:
		anchored := []gap{prefix[0], {x: tail[0].x, y: ceiling}}
		policy, mse := bestFit(anchored)
		fit.Policy.Strategy, fit.Policy.Base, fit.Policy.BaseBackoff = policy.Strategy, policy.Base, policy.BaseBackoff
		fit.Error = mse
	default:
		policy, mse := bestFit(prefix)
		fit.Policy.Strategy, fit.Policy.Base, fit.Policy.BaseBackoff = policy.Strategy, policy.Base, policy.BaseBackoff
		fit.Error = mse
	}
	fit.Fitted = true
	return fit
}

// splitCeiling separates a trailing plateau of at least two near-equal gaps.
// A plateau below an earlier gap is not a ceiling.
func splitCeiling(pts []gap) (prefix, tail []gap) {
	if len(pts) < 2 {
		return pts, nil
	}
	k := len(pts) - 1
	for k > 0 && pts[k-1].x == pts[k].x-1 && nearlyEqual(pts[k-1].y, pts[k].y) {
		k--
	}
	if len(pts)-k < 2 {
		return pts, nil
	}

	limit := meanOf(pts[k:]) * (1 + CeilingTolerance)
	for _, p := range pts[:k] {
		if p.y > limit {
			return pts, nil
		}
	}
	return pts[:k], pts[k:]
}

func nearlyEqual(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b)/scale <= CeilingTolerance
}

func meanOf(pts []gap) float64 {
	var sum float64
	for _, p := range pts {
		sum += p.y
	}
	return sum / float64(len(pts))
}

// bestFit fits both curves and keeps the one with lower mean squared error.
// Exponential wins ties and needs strictly positive gaps.
func bestFit(pts []gap) (governance.BackoffPolicy, float64) {
	slope, intercept := leastSquares(pts, func(y float64) float64 { return y })
	linear := governance.BackoffPolicy{Strategy: governance.BackoffLinear, Base: slope, BaseBackoff: intercept}
	linearMSE := mse(linear, pts)

	for _, p := range pts {
		if p.y <= 0 {
			return linear, linearMSE
		}
	}

	logSlope, logIntercept := leastSquares(pts, math.Log)
	exp := governance.BackoffPolicy{
		Strategy:    governance.BackoffExponential,
		Base:        math.Exp(logSlope),
		BaseBackoff: math.Exp(logIntercept),
	}
	expMSE := mse(exp, pts)

	if expMSE <= linearMSE || math.Abs(expMSE-linearMSE) <= tieTolerance*math.Max(1, math.Max(expMSE, linearMSE)) {
		return exp, expMSE
	}
	return linear, linearMSE
}

// leastSquares fits transform(y) = slope*x + intercept.
func leastSquares(pts []gap, transform func(float64) float64) (slope, intercept float64) {
	n := float64(len(pts))
	var sx, sy, sxx, sxy float64
	for _, p := range pts {
		y := transform(p.y)
		sx += p.x
		sy += y
		sxx += p.x * p.x
		sxy += p.x * y
	}
	denom := n*sxx - sx*sx
	if denom == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / denom
	intercept = (sy - slope*sx) / n
	return slope, intercept
}

func mse(policy governance.BackoffPolicy, pts []gap) float64 {
	var acc float64
	for _, p := range pts {
		d := policy.Delay(int(p.x)) - p.y
		acc += d * d
	}
	return acc / float64(len(pts))
}

// MergeSequences combines per-sequence fits into one summary. The strategy of
// the lowest-error fit wins; numeric parameters are averaged over fitted
// sequences sharing that strategy, each parameter over the sequences that
// carry it. Returns nil when there are no sequences.
func MergeSequences(seqs []model.RetrySequence) *model.RetrySummary {
	if len(seqs) == 0 {
		return nil
	}
	summary := &model.RetrySummary{Error: MaxUncertainty, Sequences: len(seqs)}

	winner := -1
	for i, s := range seqs {
		if !s.Fit.Fitted {
			continue
		}
		if winner < 0 || s.Fit.Error < seqs[winner].Fit.Error {
			winner = i
		}
	}
	if winner < 0 {
		summary.Policy.MaxTries = meanTries(seqs)
		return summary
	}

	strategy := seqs[winner].Fit.Policy.Strategy
	var base, baseBackoff, errAvg, maxBackoff, tries runningMean
	for _, s := range seqs {
		if !s.Fit.Fitted || s.Fit.Policy.Strategy != strategy {
			continue
		}
		base.add(s.Fit.Policy.Base)
		baseBackoff.add(s.Fit.Policy.BaseBackoff)
		errAvg.add(s.Fit.Error)
		if s.Fit.Policy.MaxBackoff != nil {
			maxBackoff.add(*s.Fit.Policy.MaxBackoff)
		}
		if s.Fit.Policy.MaxTries != nil {
			tries.add(float64(*s.Fit.Policy.MaxTries))
		}
	}

	summary.Policy.Strategy = strategy
	summary.Policy.Base = base.mean
	summary.Policy.BaseBackoff = baseBackoff.mean
	summary.Error = errAvg.mean
	if maxBackoff.n > 0 {
		v := maxBackoff.mean
		summary.Policy.MaxBackoff = &v
	}
	if tries.n > 0 {
		v := int(math.Round(tries.mean))
		summary.Policy.MaxTries = &v
	}
	return summary
}

func meanTries(seqs []model.RetrySequence) *int {
	var tries runningMean
	for _, s := range seqs {
		if s.Fit.Policy.MaxTries != nil {
			tries.add(float64(*s.Fit.Policy.MaxTries))
		}
	}
	if tries.n == 0 {
		return nil
	}
	v := int(math.Round(tries.mean))
	return &v
}

// runningMean is an incremental mean; it never overflows on MaxUncertainty.
type runningMean struct {
	n    int
	mean float64
}

func (r *runningMean) add(v float64) {
	r.n++
	r.mean += (v - r.mean) / float64(r.n)
}
