package otel

import (
	"fmt"
	"os"
	"sync/atomic"
)

// traceEnabled is set once at package init. Atomic because tests flip it
// while the UI goroutine reads it.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("REFCHECK_TRACE") != "")
}

// TraceEnabled reports whether REFCHECK_TRACE is set.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// TraceMsg records a UI message at debug level when tracing is enabled.
func (l *Logger) TraceMsg(kind EventKind, runID string, msg any) {
	if !TraceEnabled() {
		return
	}
	l.Emit(Event{Level: LevelDebug, Kind: kind, Comp: "ui", RunID: runID, Msg: fmt.Sprintf("%T", msg)})
}

// setTraceEnabled overrides the traceEnabled flag for testing.
func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
