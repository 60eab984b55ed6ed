package runtime

import "errors"

var (
	// ErrBreakLoop ends the innermost loop body. Loop nodes consume it.
	ErrBreakLoop = errors.New("loop break")
	// ErrStoppedByDebugger aborts the run after an observer pressed stop.
	ErrStoppedByDebugger = errors.New("execution stopped by debugger")
)

// IsControlSignal reports whether err is a control-flow signal rather than a
// failure.
func IsControlSignal(err error) bool {
	return errors.Is(err, ErrBreakLoop) || errors.Is(err, ErrStoppedByDebugger)
}
