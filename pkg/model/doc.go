// Package model is the normalized in-memory dependency model every trace
// format converges to.
//
// A Model owns its Services, a Service owns its Operations, and an Operation
// owns its outgoing Dependencies. Back-references (operation to service,
// dependency to callee) are names, never pointers, so models can be merged
// and copied without ownership cycles. Entity ids come from the IDAllocator
// owned by the model, which keeps construction deterministic.
//
// Models are not safe for concurrent mutation. Ingestion fills one model per
// batch; inference passes may run concurrently across distinct services.
package model
