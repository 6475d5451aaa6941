// Package viewmodel holds the state of one verification run and the reducer
// that folds stream events into it.
//
// A Model has exactly one writer. Readers get a Snapshot, which shares no
// memory with the Model and can be rendered or serialized freely.
package viewmodel

import (
	"fmt"

	"github.com/abelbrown/refcheck/internal/event"
)

// ExhaustedNote is logged when the stream ends without an end or error event.
const ExhaustedNote = "Stream closed without a completion message."

// Phase is the run's position in its lifecycle.
type Phase int

const (
	Idle Phase = iota
	Uploading
	Streaming
	Completed
	Failed
	Cancelled
)

var phaseNames = [...]string{"idle", "uploading", "streaming", "completed", "failed", "cancelled"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Terminal reports whether no further events can be accepted.
func (p Phase) Terminal() bool {
	return p == Completed || p == Failed || p == Cancelled
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	q, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = q
	return nil
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown phase %q", s)
}

// Model is the mutable aggregate for one run.
type Model struct {
	phase        Phase
	log          []string
	references   []event.Reference
	summary      *event.Summary
	metadata     *event.Metadata
	processing   bool
	errorMessage string
	applied      int
}

// New returns an idle model.
func New() *Model {
	return &Model{}
}

// Begin moves an idle model to Uploading and marks it processing.
func (m *Model) Begin() bool {
	if m.phase != Idle {
		return false
	}
	m.phase = Uploading
	m.processing = true
	return true
}

// MarkStreaming records that the first response byte arrived.
func (m *Model) MarkStreaming() bool {
	if m.phase != Uploading {
		return false
	}
	m.phase = Streaming
	return true
}

// Phase returns the current phase.
func (m *Model) Phase() Phase { return m.phase }

// Processing reports whether the run is still in flight.
func (m *Model) Processing() bool { return m.processing }

func (m *Model) accepting() bool {
	return m.phase == Uploading || m.phase == Streaming
}

// Apply reduces one event into the model. It returns false, leaving the
// model untouched, when the run no longer accepts events.
func (m *Model) Apply(ev event.Event) bool {
	if !m.accepting() || ev == nil {
		return false
	}
	m.phase = Streaming

	switch e := ev.(type) {
	case event.StatusEvent:
		m.log = append(m.log, e.Message)
	case event.MetadataEvent:
		md := e.Metadata.Clone()
		m.metadata = &md
	case event.ReferenceEvent:
		m.references = append(m.references, e.Reference.Clone())
	case event.SummaryEvent:
		s := e.Summary
		m.summary = &s
	case event.EndEvent:
		m.log = append(m.log, e.Message)
		m.finish(Completed)
	case event.ErrorEvent:
		m.fail(e.Message)
	default:
		return false
	}
	m.applied++
	return true
}

// Exhausted handles a stream that ended without a terminal event.
func (m *Model) Exhausted() bool {
	if !m.accepting() {
		return false
	}
	m.log = append(m.log, ExhaustedNote)
	m.finish(Completed)
	return true
}

// Fail ends the run because of a transport failure.
func (m *Model) Fail(msg string) bool {
	if !m.accepting() {
		return false
	}
	m.fail(msg)
	return true
}

// Cancel freezes the model. Content received so far is kept.
func (m *Model) Cancel() bool {
	if m.phase.Terminal() {
		return false
	}
	m.finish(Cancelled)
	return true
}

func (m *Model) fail(msg string) {
	m.errorMessage = msg
	m.log = append(m.log, "Error: "+msg)
	m.finish(Failed)
}

func (m *Model) finish(p Phase) {
	m.phase = p
	m.processing = false
}

// Fold replays events onto a fresh, streaming model.
func Fold(events []event.Event) *Model {
	m := New()
	m.Begin()
	m.MarkStreaming()
	for _, ev := range events {
		m.Apply(ev)
	}
	return m
}
