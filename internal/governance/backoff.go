package governance

import "math"

// BackoffStrategy names the curve that describes how retry delay grows with
// attempt count.
type BackoffStrategy string

const (
	// BackoffUnknown means no curve could be fitted.
	BackoffUnknown BackoffStrategy = ""
	// BackoffLinear is delay = base*i + baseBackoff.
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential is delay = baseBackoff * base^i.
	BackoffExponential BackoffStrategy = "exponential"
)

// BackoffPolicy is a retry policy expressed as a delay curve. Optional
// parameters are nil when they were never observed.
type BackoffPolicy struct {
	Strategy BackoffStrategy `json:"strategy,omitempty"`
	// Base is the slope (linear) or growth factor (exponential).
	Base float64 `json:"base"`
	// BaseBackoff is the intercept (linear) or initial delay (exponential).
	BaseBackoff float64 `json:"base_backoff"`
	// MaxBackoff caps every delay, in milliseconds.
	MaxBackoff *float64 `json:"max_backoff,omitempty"`
	// MaxTries is the number of retries performed after the initial call.
	MaxTries *int `json:"max_tries,omitempty"`
}

// Delay returns the delay in milliseconds before retry attempt i (0-based).
func (p BackoffPolicy) Delay(attempt int) float64 {
	var delay float64
	switch p.Strategy {
	case BackoffLinear:
		delay = p.Base*float64(attempt) + p.BaseBackoff
	case BackoffExponential:
		delay = p.BaseBackoff * math.Pow(p.Base, float64(attempt))
	default:
		return math.NaN()
	}

	// Cap at max backoff
	if p.MaxBackoff != nil && delay > *p.MaxBackoff {
		delay = *p.MaxBackoff
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Schedule lists the delays for every retry up to MaxTries, or n when MaxTries
// is unknown.
func (p BackoffPolicy) Schedule(n int) []float64 {
	if p.MaxTries != nil {
		n = *p.MaxTries
	}
	if n <= 0 || p.Strategy == BackoffUnknown {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = p.Delay(i)
	}
	return out
}
