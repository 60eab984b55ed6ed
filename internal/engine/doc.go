// Package engine interprets graphs.
//
// A run follows exec connections from the event's start node, calling each
// action node's executor, which advances the traversal itself. Data inputs
// are pulled lazily and memoized per run; nodes that read live state, and
// everything downstream of them, are volatile and re-evaluated on every
// pull. Loop nodes clear the memo of their body between iterations.
//
// Inputs recorded in a node's trace step are the values its behavior reads
// on the first pull of each pin. Later pulls of volatile inputs, such as a
// loop condition, are evaluated again.
//
// A run never panics and never leaves the context unreturned: structural
// problems make it a no-op, node failures are logged, traced and returned as
// the error.
package engine
