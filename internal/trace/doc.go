// Package trace records the execution history of graph runs.
//
// A Collector keeps running traces in an active set. Complete and Fail
// finalize a trace, move it into a bounded most-recent-first history per
// owner and, when the trace is marked for persistence, hand it to the
// durable Store. Every mutation of a finalized trace is a no-op.
package trace
