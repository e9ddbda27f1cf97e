// Package demand prepares resource demand estimation for an extracted model
// and applies estimates back to it.
//
// Estimation itself is delegated to an Estimator. The package builds the
// estimator input (per host CPU utilization series and per operation/host
// response time series), can persist it as CSV files for external tools, and
// sets each operation's demand from the estimated utilization.
package demand
