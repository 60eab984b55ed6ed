// Package app wires the interpreter together: settings, logger, node
// registry, trace and definition storage, graph manager and the socket.io
// gateway. It owns the process lifecycle and is decoupled from the CLI
// entrypoint.
package app
