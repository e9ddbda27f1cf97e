// Package inference recovers operational patterns that traces never state
// explicitly: how often a dependency is exercised, whether callers retry with
// a linear or exponential backoff, and whether a service's instances are
// picked round-robin.
//
// Every pass reads collected history and writes one derived field per entity,
// so passes are rerunnable and may run concurrently across services. Nothing
// here blocks on I/O.
package inference
