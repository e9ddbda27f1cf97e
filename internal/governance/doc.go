// Package governance holds the resilience-policy vocabulary recovered from
// traces: circuit breaker descriptors, retry backoff curves and load
// balancing strategies.
//
// The types are plain values. Detection lives in pkg/inference; this package
// only knows how a policy behaves once its parameters are known, so the
// fitted curves can be evaluated, capped and exported consistently.
package governance
