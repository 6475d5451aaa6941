package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/abelbrown/refcheck/internal/event"
)

// dataMarker prefixes the payload line of a frame.
const dataMarker = "data:"

// DropReason classifies why a frame was discarded.
type DropReason string

const (
	ReasonNoData         DropReason = "no_data"
	ReasonMalformed      DropReason = "malformed_json"
	ReasonUnknownKind    DropReason = "unknown_kind"
	ReasonInvalidPayload DropReason = "invalid_payload"
)

// FrameError describes a frame that could not be turned into an event.
type FrameError struct {
	Reason DropReason
	Kind   string // the frame's type tag, when it got that far
	Err    error
}

func (e *FrameError) Error() string {
	msg := string(e.Reason)
	if e.Kind != "" {
		msg += " (" + e.Kind + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FrameError) Unwrap() error { return e.Err }

// envelope is the outer JSON object of every frame.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Wire payloads use pointers so that "missing" and "zero" can be told apart
// by the validator.

type messagePayload struct {
	Message *string `json:"message" validate:"required"`
}

type metadataPayload struct {
	Title       *string  `json:"title"`
	Authors     []string `json:"authors"`
	Year        *int     `json:"year" validate:"omitempty,gte=0"`
	Affiliation *string  `json:"affiliation"`
}

// UnmarshalJSON accepts the year as a number or a numeric string. The
// service fills metadata from model output, so any other year value is
// treated as absent instead of dropping the whole frame.
func (p *metadataPayload) UnmarshalJSON(b []byte) error {
	type plain metadataPayload
	aux := struct {
		*plain
		Year json.RawMessage `json:"year"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.Year = looseYear(aux.Year)
	return nil
}

func looseYear(raw json.RawMessage) *int {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return nil
	}
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e6 {
			n := int(x)
			return &n
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return &n
		}
	}
	return nil
}

type referencePayload struct {
	RawText           *string  `json:"raw_text" validate:"required"`
	Status            *string  `json:"status" validate:"required,min=1"`
	Authors           []string `json:"authors"`
	Year              *int     `json:"year" validate:"omitempty,gte=0"`
	Title             *string  `json:"title"`
	Source            *string  `json:"source"`
	VerifiedDOI       *string  `json:"verified_doi"`
	VerificationScore *float64 `json:"verification_score" validate:"required,gte=0,lte=100"`
	FormatSuggestion  *string  `json:"format_suggestion"`
	SourceURL         *string  `json:"source_url"`
}

type summaryPayload struct {
	TotalReferences  *int `json:"total_references" validate:"required,gte=0"`
	VerifiedCount    *int `json:"verified_count" validate:"required,gte=0"`
	NotFoundCount    *int `json:"not_found_count" validate:"required,gte=0"`
	FormatErrorCount *int `json:"format_error_count" validate:"required,gte=0"`
}

var errMissingPayload = errors.New("missing payload")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(summaryWithinTotal, summaryPayload{})
	return v
}

// summaryWithinTotal enforces verified+not_found+format_error <= total.
func summaryWithinTotal(sl validator.StructLevel) {
	s := sl.Current().Interface().(summaryPayload)
	if s.TotalReferences == nil || s.VerifiedCount == nil || s.NotFoundCount == nil || s.FormatErrorCount == nil {
		return
	}
	if *s.VerifiedCount+*s.NotFoundCount+*s.FormatErrorCount > *s.TotalReferences {
		sl.ReportError(s.TotalReferences, "total_references", "TotalReferences", "counts_within_total", "")
	}
}

// ParseFrame decodes one complete frame (without its trailing blank line).
// Every failure is a *FrameError.
func ParseFrame(frame string) (event.Event, error) {
	data, ok := frameData(frame)
	if !ok {
		return nil, &FrameError{Reason: ReasonNoData}
	}

	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, &FrameError{Reason: ReasonMalformed, Err: err}
	}

	kind := event.Kind(env.Type)
	if !kind.Valid() {
		return nil, &FrameError{Reason: ReasonUnknownKind, Kind: env.Type}
	}

	ev, err := decodeEvent(kind, env.Payload)
	if err != nil {
		return nil, &FrameError{Reason: ReasonInvalidPayload, Kind: env.Type, Err: err}
	}
	return ev, nil
}

// frameData joins the data lines of a frame. Several data lines are joined
// with newlines, as in server-sent events.
func frameData(frame string) (string, bool) {
	var parts []string
	for _, line := range strings.Split(frame, "\n") {
		if !strings.HasPrefix(line, dataMarker) {
			continue
		}
		parts = append(parts, strings.TrimSpace(line[len(dataMarker):]))
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

func decodeEvent(kind event.Kind, raw json.RawMessage) (event.Event, error) {
	switch kind {
	case event.KindStatus, event.KindEnd, event.KindError:
		var p messagePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		switch kind {
		case event.KindStatus:
			return event.StatusEvent{Message: *p.Message}, nil
		case event.KindEnd:
			return event.EndEvent{Message: *p.Message}, nil
		default:
			return event.ErrorEvent{Message: *p.Message}, nil
		}

	case event.KindMetadata:
		var p metadataPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return event.MetadataEvent{Metadata: event.Metadata{
			Title:       str(p.Title),
			Authors:     p.Authors,
			Year:        num(p.Year),
			Affiliation: str(p.Affiliation),
		}}, nil

	case event.KindReference:
		var p referencePayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return event.ReferenceEvent{Reference: event.Reference{
			RawText:           *p.RawText,
			Status:            event.ReferenceStatus(*p.Status),
			Authors:           p.Authors,
			Year:              num(p.Year),
			Title:             str(p.Title),
			Source:            str(p.Source),
			VerifiedDOI:       str(p.VerifiedDOI),
			VerificationScore: *p.VerificationScore,
			FormatSuggestion:  str(p.FormatSuggestion),
			SourceURL:         str(p.SourceURL),
		}}, nil

	case event.KindSummary:
		var p summaryPayload
		if err := decodePayload(raw, &p); err != nil {
			return nil, err
		}
		return event.SummaryEvent{Summary: event.Summary{
			TotalReferences:  *p.TotalReferences,
			VerifiedCount:    *p.VerifiedCount,
			NotFoundCount:    *p.NotFoundCount,
			FormatErrorCount: *p.FormatErrorCount,
		}}, nil
	}
	return nil, fmt.Errorf("unhandled kind %q", kind)
}

// decodePayload unmarshals raw into dst and validates its shape.
func decodePayload(raw json.RawMessage, dst any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return errMissingPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	return nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func num(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
