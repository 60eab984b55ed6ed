// Package debug implements shared debug sessions, one per owner and graph
// id: breakpoints with optional conditions, a single active pause per
// session that any attached observer may resume or stop, and broadcast of
// session events to the session's observers.
//
// Two owners loading graphs with the same id get independent sessions.
// A run that reaches a breakpoint while another run in its session is
// paused waits in FIFO order for the pause slot. The wait and the pause are
// both cancelled through the run's context.
package debug
