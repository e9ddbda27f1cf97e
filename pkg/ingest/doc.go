// Package ingest turns decoded trace batches into a service dependency model.
//
// Every supported encoding is first flattened into a common span list and
// then handed to one builder that runs three ordered passes over the batch:
// services and hosts, operations and their observations, and finally
// dependencies together with the per-caller call history used by retry
// detection. The passes are an invariant; a dependency is only wired once
// both of its endpoints exist.
package ingest
