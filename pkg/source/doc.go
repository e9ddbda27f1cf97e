// Package source reads trace payloads from bytes and files and turns them
// into ingest batches, detecting the encoding when it is not given.
package source
