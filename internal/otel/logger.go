package otel

// Goroutine safety:
// The drain goroutine is the sole reader of l.ch and the sole writer to l.w.
// Logger.mu protects only the l.buf pointer (read by drain, written by SetRingBuffer).
// The ring buffer's own mu handles concurrent Push/Snapshot/Last/Stats calls.

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// writerChanSize is the capacity of the async write channel.
	writerChanSize = 4096
)

// logEntry carries both serialized bytes (for disk) and the original Event
// (for the ring buffer), so Dur survives in the ring copy.
type logEntry struct {
	data []byte
	ev   Event
}

// Logger serializes events as JSONL via an async background writer.
// Goroutine-safe.
type Logger struct {
	mu        sync.Mutex
	buf       *RingBuffer // nil until SetRingBuffer
	procID    string
	ch        chan logEntry
	w         io.Writer
	dropped   atomic.Uint64 // full channel, encode failure, or write error
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewLogger creates a Logger writing JSONL to w asynchronously.
// Call Close() to flush and stop.
func NewLogger(w io.Writer) *Logger {
	var id [8]byte
	_, _ = rand.Read(id[:])

	l := &Logger{
		procID: fmt.Sprintf("%x", id[:]),
		ch:     make(chan logEntry, writerChanSize),
		w:      w,
		done:   make(chan struct{}),
	}
	go l.drain()
	return l
}

// NewNullLogger creates a Logger that discards output.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

func (l *Logger) drain() {
	defer close(l.done)
	for entry := range l.ch {
		if _, err := l.w.Write(entry.data); err != nil {
			l.dropped.Add(1)
		}

		l.mu.Lock()
		rb := l.buf
		l.mu.Unlock()

		if rb != nil {
			rb.Push(entry.ev)
		}
	}
}

// Emit writes an event to the JSONL log (and ring buffer if attached).
// Sets Time (if zero) and ProcID. Non-blocking: if the channel is full or
// the logger is closed, the event is dropped and counted.
//
// A nil Logger discards everything.
func (l *Logger) Emit(e Event) {
	if l == nil {
		return
	}
	defer func() {
		// Close may race between the closed check and the send.
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()

	if l.closed.Load() {
		l.dropped.Add(1)
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.ProcID = l.procID

	data, err := json.Marshal(e)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	select {
	case l.ch <- logEntry{data: data, ev: e}:
	default:
		l.dropped.Add(1)
	}
}

// Info emits an info-level event.
func (l *Logger) Info(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelInfo, Kind: kind, Comp: comp, Msg: msg})
}

// Error emits an error-level event. Nil err is safe (logged as empty string).
func (l *Logger) Error(kind EventKind, comp string, err error) {
	l.Emit(Event{Level: LevelError, Kind: kind, Comp: comp, Err: errString(err)})
}

// Warn emits a warn-level event.
func (l *Logger) Warn(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelWarn, Kind: kind, Comp: comp, Msg: msg})
}

// Run returns an emitter that stamps every event with runID and comp.
func (l *Logger) Run(runID, comp string) RunLogger {
	return RunLogger{l: l, runID: runID, comp: comp}
}

// SetRingBuffer attaches a ring buffer for live inspection.
func (l *Logger) SetRingBuffer(buf *RingBuffer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = buf
}

// Dropped returns the number of events dropped since creation.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close flushes pending events, stops the drain goroutine, and reports
// any dropped events to stderr. Idempotent.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		<-l.done

		if d := l.dropped.Load(); d > 0 {
			fmt.Fprintf(os.Stderr, "refcheck: %d diagnostic events dropped (process %s)\n", d, l.procID)
		}
	})
}

// RunLogger emits events scoped to one run. The zero value discards.
type RunLogger struct {
	l     *Logger
	runID string
	comp  string
}

// Emit fills RunID and Comp when unset and forwards e.
func (r RunLogger) Emit(e Event) {
	if e.RunID == "" {
		e.RunID = r.runID
	}
	if e.Comp == "" {
		e.Comp = r.comp
	}
	r.l.Emit(e)
}

func (r RunLogger) Info(kind EventKind, msg string) {
	r.Emit(Event{Level: LevelInfo, Kind: kind, Msg: msg})
}

func (r RunLogger) Warn(kind EventKind, msg string) {
	r.Emit(Event{Level: LevelWarn, Kind: kind, Msg: msg})
}

func (r RunLogger) Error(kind EventKind, err error) {
	r.Emit(Event{Level: LevelError, Kind: kind, Err: errString(err)})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
