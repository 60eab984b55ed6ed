// Package varstore provides the thread-safe, in-memory store of graph
// variables that persist across runs.
//
// # Purpose
//
// Each (owner, graph) pair owns one entry holding the variable mapping a
// run is seeded with and that the run's final mapping replaces on success.
// Entries live in a sync.Map: the key space is stable once an owner is
// loaded while values change on every run.
//
// # Concurrency Model
//
// Runs of the same (owner, graph) are serialized: Update holds the entry
// for the whole seed, run and write-back cycle, so concurrent events never
// race on a read-modify-write of the mapping. Runs of different graphs do
// not contend. Waiting for an entry honors context cancellation.
package varstore
