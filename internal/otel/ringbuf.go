package otel

import (
	"maps"
	"sync"
)

// DefaultRingSize is the default ring buffer capacity.
const DefaultRingSize = 1024

// RingBuffer keeps the most recent diagnostics events in memory for the
// debug overlay. Safe for concurrent use.
type RingBuffer struct {
	mu     sync.Mutex
	events []Event
	pushed uint64 // events ever pushed, evicted ones included
}

// NewRingBuffer creates a ring buffer holding up to size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{events: make([]Event, size)}
}

// Push adds an event, evicting the oldest if full. Extra is cloned so the
// caller may reuse its map.
func (r *RingBuffer) Push(e Event) {
	e.Extra = maps.Clone(e.Extra)

	r.mu.Lock()
	r.events[r.pushed%uint64(len(r.events))] = e
	r.pushed++
	r.mu.Unlock()
}

// len must be called with mu held.
func (r *RingBuffer) len() int {
	if r.pushed < uint64(len(r.events)) {
		return int(r.pushed)
	}
	return len(r.events)
}

// at returns the i-th oldest buffered event. Must be called with mu held.
func (r *RingBuffer) at(i int) Event {
	first := r.pushed - uint64(r.len())
	return r.events[(first+uint64(i))%uint64(len(r.events))]
}

// Snapshot returns all buffered events, oldest first, or nil if empty.
func (r *RingBuffer) Snapshot() []Event {
	return r.Select(nil, 0)
}

// Last returns the n most recent events, oldest first. n <= 0 returns nil.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}
	return r.Select(nil, n)
}

// Select returns the most recent events accepted by match, oldest first.
// A nil match accepts everything; limit <= 0 returns every match.
func (r *RingBuffer) Select(match func(Event) bool, limit int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for i := r.len() - 1; i >= 0; i-- {
		e := r.at(i)
		if match != nil && !match(e) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ForRun returns the buffered events of one run, oldest first.
func (r *RingBuffer) ForRun(runID string) []Event {
	return r.Select(func(e Event) bool { return e.RunID == runID }, 0)
}

// Len returns the number of buffered events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.len()
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return len(r.events)
}

// Evicted returns how many events were pushed out by newer ones.
func (r *RingBuffer) Evicted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushed - uint64(r.len())
}

// Stats counts the buffered events by kind.
func (r *RingBuffer) Stats() map[EventKind]int {
	return countKinds(r.Snapshot())
}

// RunStats counts one run's buffered events by kind.
func (r *RingBuffer) RunStats(runID string) map[EventKind]int {
	return countKinds(r.ForRun(runID))
}

func countKinds(events []Event) map[EventKind]int {
	counts := make(map[EventKind]int)
	for _, e := range events {
		counts[e.Kind]++
	}
	return counts
}
