// Package sse decodes the verification service's event stream.
//
// The stream is a sequence of text frames separated by a blank line. Each
// frame carries one "data: <json>" line. Frames arrive split across network
// reads at arbitrary byte positions, so the Decoder buffers text between
// calls and only decodes frames once their separator has been seen.
//
// Malformed frames never stop decoding: they are dropped and reported to
// the optional drop handler.
package sse

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/abelbrown/refcheck/internal/event"
)

// frameDelimiter separates frames on the wire.
const frameDelimiter = "\n\n"

// maxDiagnosticFrame caps how much of a dropped frame is kept for diagnostics.
const maxDiagnosticFrame = 200

// Diagnostic describes a dropped frame.
type Diagnostic struct {
	Reason DropReason
	Frame  string // possibly truncated
	Err    error
}

// Stats counts decoder activity since creation.
type Stats struct {
	Frames  int // complete, non-blank frames seen
	Events  int // frames successfully decoded
	Dropped int // frames discarded
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithDropHandler registers fn to be called for every dropped frame.
func WithDropHandler(fn func(Diagnostic)) Option {
	return func(d *Decoder) {
		d.onDrop = fn
	}
}

// Decoder reassembles frames from chunks and decodes them into events.
// Not safe for concurrent use: feed it from a single goroutine.
type Decoder struct {
	text   *textDecoder
	buf    string
	onDrop func(Diagnostic)
	stats  Stats
}

// NewDecoder creates a Decoder with an empty buffer.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{text: newTextDecoder()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends chunk to the buffer and returns the events of every frame
// completed by it, in order. Empty chunks are no-ops.
func (d *Decoder) Feed(chunk []byte) []event.Event {
	text := d.text.decode(chunk)
	if text == "" {
		return nil
	}
	d.buf += text

	frames := strings.Split(d.buf, frameDelimiter)
	d.buf = frames[len(frames)-1]

	var events []event.Event
	for _, frame := range frames[:len(frames)-1] {
		if strings.TrimSpace(frame) == "" {
			continue
		}
		d.stats.Frames++

		ev, err := ParseFrame(frame)
		if err != nil {
			d.drop(frame, err)
			continue
		}
		d.stats.Events++
		events = append(events, ev)
	}
	return events
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf) + d.text.pendingLen()
}

// Close ends the stream. Any incomplete trailing frame is discarded, never
// decoded; Close returns its size in bytes (0 if only whitespace remained).
func (d *Decoder) Close() int {
	n := 0
	if strings.TrimSpace(d.buf) != "" || d.text.pendingLen() > 0 {
		n = d.Buffered()
	}
	d.buf = ""
	d.text.reset()
	return n
}

// Stats returns the counters accumulated so far.
func (d *Decoder) Stats() Stats {
	return d.stats
}

func (d *Decoder) drop(frame string, err error) {
	d.stats.Dropped++
	if d.onDrop == nil {
		return
	}
	diag := Diagnostic{Frame: truncate(frame, maxDiagnosticFrame), Err: err}
	var fe *FrameError
	if errors.As(err, &fe) {
		diag.Reason = fe.Reason
	}
	d.onDrop(diag)
}

// truncate shortens s to at most max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
