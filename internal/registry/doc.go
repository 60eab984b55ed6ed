// Package registry is the node type registry: a table from a stable type
// tag to the Descriptor that declares a node type's pins and behaviors.
//
// Descriptors are registered once at startup by node modules implementing
// Module and are read-only afterwards. Every descriptor belongs to exactly one
// Kind, and Register rejects descriptors whose behaviors do not match their
// kind. Registration mistakes are programmer errors and panic.
package registry
