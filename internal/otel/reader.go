package otel

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Filter selects events read back from a JSONL log.
type Filter struct {
	KindPrefix string
	MinLevel   Level
	Comp       string
	RunID      string
}

// Match reports whether e passes every set criterion.
func (f Filter) Match(e Event) bool {
	if f.KindPrefix != "" && !strings.HasPrefix(string(e.Kind), f.KindPrefix) {
		return false
	}
	if f.MinLevel != "" && e.Level.Rank() < f.MinLevel.Rank() {
		return false
	}
	if f.Comp != "" && e.Comp != f.Comp {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	return true
}

// Line is one decoded JSONL record plus its raw bytes.
type Line struct {
	Event Event
	Raw   []byte
}

// ReadTail returns the last n lines of r that match f, oldest first.
// Undecodable lines are skipped.
func ReadTail(r io.Reader, n int, f Filter) ([]Line, error) {
	if n <= 0 {
		return nil, nil
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	ring := make([]Line, 0, n)
	for scanner.Scan() {
		line, ok := DecodeLine(scanner.Bytes())
		if !ok || !f.Match(line.Event) {
			continue
		}
		if len(ring) < n {
			ring = append(ring, line)
		} else {
			copy(ring, ring[1:])
			ring[n-1] = line
		}
	}
	return ring, scanner.Err()
}

// DecodeLine parses one JSONL record. The raw bytes are copied.
func DecodeLine(raw []byte) (Line, bool) {
	raw = []byte(strings.TrimRight(string(raw), "\r\n"))
	if len(raw) == 0 {
		return Line{}, false
	}
	var ev Event
	if json.Unmarshal(raw, &ev) != nil {
		return Line{}, false
	}
	return Line{Event: ev, Raw: raw}, true
}
