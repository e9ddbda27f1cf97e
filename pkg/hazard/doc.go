// Package hazard screens per-operation response times for anomalies and
// promotes them to service level findings.
//
// The screen is a heuristic with fixed thresholds: samples further than
// OutlierFactor sample standard deviations from the mean are outliers, a
// filtered spread (1 - min/max) above DeviationThreshold is a deviation, and
// an outlier above the filtered maximum is a spike.
package hazard
