// Package event defines the typed events carried by the verification stream.
//
// The service emits one JSON object per frame of the form
// {"type": <kind>, "payload": {...}}. Each kind decodes into exactly one
// concrete Event type; the set is closed (see the unexported marker method),
// so consumers can switch over it exhaustively.
package event

// Kind is the discriminator of a stream event.
type Kind string

const (
	KindStatus    Kind = "status"
	KindMetadata  Kind = "metadata"
	KindReference Kind = "reference"
	KindSummary   Kind = "summary"
	KindEnd       Kind = "end"
	KindError     Kind = "error"
)

// Kinds lists every recognized kind in protocol order.
var Kinds = []Kind{KindStatus, KindMetadata, KindReference, KindSummary, KindEnd, KindError}

// Valid reports whether k is one of the recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStatus, KindMetadata, KindReference, KindSummary, KindEnd, KindError:
		return true
	}
	return false
}

// Terminal reports whether an event of this kind ends a run.
func (k Kind) Terminal() bool {
	return k == KindEnd || k == KindError
}

// Event is a decoded stream event. Implemented only by the types in this package.
type Event interface {
	Kind() Kind
	event()
}

// StatusEvent is a progress line from the service.
type StatusEvent struct {
	Message string
}

// MetadataEvent carries the paper's own bibliographic metadata.
type MetadataEvent struct {
	Metadata Metadata
}

// ReferenceEvent carries one verified (or not) reference row.
type ReferenceEvent struct {
	Reference Reference
}

// SummaryEvent carries the running verification counters.
type SummaryEvent struct {
	Summary Summary
}

// EndEvent signals successful completion.
type EndEvent struct {
	Message string
}

// ErrorEvent signals a service-side failure. It terminates the run.
type ErrorEvent struct {
	Message string
}

func (StatusEvent) Kind() Kind    { return KindStatus }
func (MetadataEvent) Kind() Kind  { return KindMetadata }
func (ReferenceEvent) Kind() Kind { return KindReference }
func (SummaryEvent) Kind() Kind   { return KindSummary }
func (EndEvent) Kind() Kind       { return KindEnd }
func (ErrorEvent) Kind() Kind     { return KindError }

func (StatusEvent) event()    {}
func (MetadataEvent) event()  {}
func (ReferenceEvent) event() {}
func (SummaryEvent) event()   {}
func (EndEvent) event()       {}
func (ErrorEvent) event()     {}
