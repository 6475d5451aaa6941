package viewmodel

import "github.com/abelbrown/refcheck/internal/event"

// Snapshot is a read-only copy of a Model.
type Snapshot struct {
	Phase        Phase             `json:"phase"`
	Log          []string          `json:"log"`
	References   []event.Reference `json:"references"`
	Summary      *event.Summary    `json:"summary,omitempty"`
	Metadata     *event.Metadata   `json:"metadata,omitempty"`
	IsProcessing bool              `json:"is_processing"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Events       int               `json:"events"`
}

// Snapshot copies the model's state.
func (m *Model) Snapshot() Snapshot {
	s := Snapshot{
		Phase:        m.phase,
		Log:          make([]string, len(m.log)),
		References:   make([]event.Reference, len(m.references)),
		IsProcessing: m.processing,
		ErrorMessage: m.errorMessage,
		Events:       m.applied,
	}
	copy(s.Log, m.log)
	for i, r := range m.references {
		s.References[i] = r.Clone()
	}
	if m.summary != nil {
		sum := *m.summary
		s.Summary = &sum
	}
	if m.metadata != nil {
		md := m.metadata.Clone()
		s.Metadata = &md
	}
	return s
}

// Finished reports whether the run reached Completed or Failed.
func (s Snapshot) Finished() bool {
	return s.Phase == Completed || s.Phase == Failed
}

// VerifiedReferences counts rows whose status is verified.
func (s Snapshot) VerifiedReferences() int {
	n := 0
	for _, r := range s.References {
		if r.Status.Verified() {
			n++
		}
	}
	return n
}
