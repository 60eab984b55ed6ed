// Package gateway exposes the interpreter over socket.io.
//
// # Bot namespace (/bot)
//
// A bot process connects, emits "register" {ownerId, username} and then
// streams:
//
//   - "state"    a world snapshot (position, health, food, players)
//   - "event"    {type, args} game events, dispatched to the owner's graphs
//   - "api_call" {graphName, data} with an ack that receives the response
//
// The gateway emits "action" {kind, ...} back to the bot for every
// capability a graph uses. Player and entity queries are answered from the
// world cached from "state" and entity events.
//
// # Debug namespace (/debug)
//
// Observers "attach" {ownerId, graphId} to receive the "debug" events of
// that owner's session, and "subscribe" {ownerId} to receive "telemetry"
// events. Breakpoint, resume/stop and trace lookups are acknowledged
// commands; session commands need both ownerId and graphId. See Commands.
//
// Every ack carries {ok: true, result} or {ok: false, error}.
//
// The HTTP listener also serves GET /health.
package gateway
