// Package pipeline runs a full extraction: it ingests trace batches in
// parallel, merges them in input order, derives retries, load balancers and
// dependency probabilities, validates the model and its architecture graph,
// applies policy rules, analyses hazards, exports the graph and stores the
// run.
package pipeline
