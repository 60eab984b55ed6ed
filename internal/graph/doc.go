// Package graph defines the structural model of a node graph: nodes with
// literal parameters, pins, connections and declared variables.
//
// A Graph is decoded once from its JSON form and shared read-only by every
// run. Nothing in this package executes anything; it only answers structural
// questions through an Index, which is built per graph and validated on
// construction.
package graph
