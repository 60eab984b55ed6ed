// Package tracestore provides durable trace.Store implementations backed
// by SQL databases or Redis. Traces are stored as JSON payloads.
package tracestore
