package governance

import (
	"strconv"
	"strings"
)

// CircuitBreaker describes a circuit breaker observed on an operation.
// Windows are expressed in seconds, matching the simulator vocabulary the
// model is exported to.
type CircuitBreaker struct {
	// RollingWindow is the look-back window used to compute the error rate.
	RollingWindow float64 `json:"rolling_window"`
	// RequestVolumeThreshold is the minimum call count inside the window
	// before the error rate is evaluated.
	RequestVolumeThreshold int `json:"request_volume_threshold"`
	// ErrorThresholdPercentage is the error fraction (0-1) that opens the circuit.
	ErrorThresholdPercentage float64 `json:"error_threshold_percentage"`
	// Timeout is the call timeout after which a call counts as failed.
	Timeout float64 `json:"timeout"`
	// SleepWindow is how long the circuit stays open before probing.
	SleepWindow float64 `json:"sleep_window"`
}

// DefaultCircuitBreaker returns the defaults attached when a trace only
// signals that a breaker is present.
func DefaultCircuitBreaker() CircuitBreaker {
	return CircuitBreaker{
		RollingWindow:            10,
		RequestVolumeThreshold:   20,
		ErrorThresholdPercentage: 0.5,
		Timeout:                  1,
		SleepWindow:              5,
	}
}

// Trips reports whether a window with the given call and failure counts
// would open the circuit.
func (cb CircuitBreaker) Trips(requests, failures int) bool {
	if requests == 0 || requests < cb.RequestVolumeThreshold {
		return false
	}
	return float64(failures)/float64(requests) >= cb.ErrorThresholdPercentage
}

// ParseCircuitBreakerTag interprets a circuit breaker tag value. Boolean
// style values attach the defaults; anything false-like disables.
func ParseCircuitBreakerTag(value any) (CircuitBreaker, bool) {
	if !Truthy(value) {
		return CircuitBreaker{}, false
	}
	return DefaultCircuitBreaker(), true
}

// Truthy interprets tag values the way tracing libraries emit them: native
// booleans, numbers and their string renderings.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		s := strings.TrimSpace(strings.ToLower(v))
		switch s {
		case "", "false", "no", "off", "0", "none", "null":
			return false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0
		}
		return true
	default:
		return true
	}
}
