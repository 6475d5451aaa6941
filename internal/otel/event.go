// Package otel provides structured diagnostics for refcheck.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer provides live in-memory inspection for the debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Rank orders levels by severity. Unknown levels rank as debug.
func (l Level) Rank() int {
	switch l {
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 0
	}
}

// EventKind identifies the category of a diagnostic event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Upload events
	KindUploadStart EventKind = "upload.start"
	KindUploadError EventKind = "upload.error"

	// Stream events
	KindStreamOpen      EventKind = "stream.open"
	KindStreamFirstByte EventKind = "stream.first_byte"
	KindStreamEnd       EventKind = "stream.end"
	KindStreamError     EventKind = "stream.error"
	KindStreamCancel    EventKind = "stream.cancel"

	// Decoder events
	KindFrameDropped   EventKind = "frame.dropped"
	KindFrameDiscarded EventKind = "frame.discarded"

	// History events
	KindRunSaved   EventKind = "run.saved"
	KindStoreError EventKind = "store.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"

	// Trace events
	KindMsgReceived EventKind = "trace.msg_received"
	KindMsgHandled  EventKind = "trace.msg_handled"
)

// Event is the universal diagnostic record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time   time.Time      `json:"t"`
	Level  Level          `json:"level,omitempty"`
	Kind   EventKind      `json:"kind"`
	Comp   string         `json:"comp,omitempty"`   // component: "session", "ui", "transport", "main"
	ProcID string         `json:"proc_id,omitempty"` // random hex, same for the whole process
	RunID  string         `json:"run_id,omitempty"`  // one upload
	Dur    time.Duration  `json:"-"`                 // not serialized directly
	DurMs  float64        `json:"dur_ms,omitempty"`  // computed from Dur at marshal time
	Count  int            `json:"count,omitempty"`
	Bytes  int64          `json:"bytes,omitempty"`
	Model  string         `json:"model,omitempty"`
	Reason string         `json:"reason,omitempty"` // drop reason for frame events
	Err    string         `json:"err,omitempty"`
	Msg    string         `json:"msg,omitempty"`   // free text
	Extra  map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
