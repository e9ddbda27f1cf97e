// Package domain defines the core vocabulary shared by the trace ingestion,
// inference and architecture layers of archextract.
//
// This package contains pure domain types with ZERO external dependencies outside
// the Go standard library. All types in this package are:
//
// - Independent of trace formats and transport
// - Free of model state (the mutable dependency model lives in pkg/model)
// - Testable in isolation without mocks
//
// Other packages (ingest, inference, architecture, pipeline) depend on these
// types. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
