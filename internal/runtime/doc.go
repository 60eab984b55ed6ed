// Package runtime defines the per-run contract shared by the execution
// engine and node behaviors: the run Context, the bot Capabilities it
// exposes, event field extraction, variable default coercion, persistence
// intents and the control-flow signals that end a traversal early without
// counting as a failure.
package runtime
