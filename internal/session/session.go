// Package session ties one upload together: the decoder that frames the
// response, the view model it feeds, and the run's diagnostics.
//
// A Session is not safe for concurrent use. Exactly one goroutine (the
// Bubble Tea update loop, or Drive in headless mode) feeds it chunks;
// everyone else reads Snapshots. Once Done reports true the session no
// longer changes and may be read from any goroutine.
package session

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/refcheck/internal/event"
	"github.com/abelbrown/refcheck/internal/logging"
	"github.com/abelbrown/refcheck/internal/otel"
	"github.com/abelbrown/refcheck/internal/sse"
	"github.com/abelbrown/refcheck/internal/transport"
	"github.com/abelbrown/refcheck/internal/viewmodel"
)

// CriticalPrefix starts the error message of a transport failure.
const CriticalPrefix = "A critical error occurred: "

// Session is one verification run.
type Session struct {
	ID        string
	FileName  string
	Model     string
	StartedAt time.Time

	decoder    *sse.Decoder
	vm         *viewmodel.Model
	diag       otel.RunLogger
	bytes      int64
	finishedAt time.Time
}

// New starts a run for up. The view model begins in the uploading phase.
func New(up transport.Upload, diag *otel.Logger) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		FileName:  up.FileName,
		Model:     up.Model,
		StartedAt: time.Now(),
		vm:        viewmodel.New(),
	}
	if s.FileName == "" && up.Path != "" {
		s.FileName = filepath.Base(up.Path)
	}
	s.diag = diag.Run(s.ID, "session")
	s.decoder = sse.NewDecoder(sse.WithDropHandler(s.onDrop))
	s.vm.Begin()
	return s
}

// Open issues the upload. It does not touch the view model: hand any error
// to Close on the goroutine that owns the session.
func (s *Session) Open(ctx context.Context, c *transport.Client, up transport.Upload) (*transport.Stream, error) {
	s.diag.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindUploadStart, Model: s.Model, Msg: s.FileName})
	logging.Info("upload started", "run", s.ID, "file", s.FileName, "model", s.Model)

	start := time.Now()
	st, err := c.Open(ctx, up)
	if err != nil {
		s.diag.Error(otel.KindUploadError, err)
		logging.Error("upload failed", "run", s.ID, "err", err)
		return nil, err
	}
	s.diag.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStreamOpen, Dur: time.Since(start)})
	return st, nil
}

// Feed decodes chunk and reduces its events. It reports whether the view
// model changed. Chunks arriving after the run ended are ignored.
func (s *Session) Feed(chunk []byte) bool {
	if len(chunk) == 0 || s.Done() {
		return false
	}
	s.bytes += int64(len(chunk))

	changed := false
	if s.vm.MarkStreaming() {
		s.diag.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStreamFirstByte, Dur: time.Since(s.StartedAt)})
		changed = true
	}

	for _, ev := range s.decoder.Feed(chunk) {
		if s.vm.Apply(ev) {
			changed = true
		}
		if ev.Kind().Terminal() {
			s.terminated(ev)
			break
		}
	}
	return changed
}

// Close ends the stream. A nil err is natural exhaustion; anything else is
// a transport failure and fails the run.
func (s *Session) Close(err error) {
	if s.Done() {
		return
	}
	if err != nil {
		if s.vm.Fail(CriticalPrefix + err.Error()) {
			s.finishedAt = time.Now()
			s.diag.Error(otel.KindStreamError, err)
			logging.Error("stream failed", "run", s.ID, "err", err)
		}
		return
	}

	if n := s.decoder.Close(); n > 0 {
		s.diag.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindFrameDiscarded, Bytes: int64(n), Msg: "incomplete trailing frame"})
	}
	if s.vm.Exhausted() {
		s.finishedAt = time.Now()
		s.diag.Warn(otel.KindStreamEnd, viewmodel.ExhaustedNote)
	}
}

// Cancel abandons the run. The view model keeps what it has and accepts
// nothing further.
func (s *Session) Cancel() bool {
	if !s.vm.Cancel() {
		return false
	}
	s.finishedAt = time.Now()
	s.diag.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStreamCancel, Bytes: s.bytes})
	logging.Info("run cancelled", "run", s.ID)
	return true
}

// Snapshot is the read-only view for renderers.
func (s *Session) Snapshot() viewmodel.Snapshot {
	return s.vm.Snapshot()
}

// Phase returns the view model's phase.
func (s *Session) Phase() viewmodel.Phase {
	return s.vm.Phase()
}

// Done reports whether the run reached a terminal phase.
func (s *Session) Done() bool {
	return s.vm.Phase().Terminal()
}

// BytesReceived returns the number of body bytes fed so far.
func (s *Session) BytesReceived() int64 {
	return s.bytes
}

// DecoderStats returns the frame counters.
func (s *Session) DecoderStats() sse.Stats {
	return s.decoder.Stats()
}

// Elapsed is the run's duration so far, or its total once finished.
func (s *Session) Elapsed() time.Duration {
	if !s.finishedAt.IsZero() {
		return s.finishedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// FinishedAt is zero until the run ends.
func (s *Session) FinishedAt() time.Time {
	return s.finishedAt
}

func (s *Session) terminated(ev event.Event) {
	s.finishedAt = time.Now()
	stats := s.decoder.Stats()
	e := otel.Event{Level: otel.LevelInfo, Kind: otel.KindStreamEnd, Count: stats.Events, Bytes: s.bytes, Dur: s.Elapsed()}
	if errEv, ok := ev.(event.ErrorEvent); ok {
		e.Level = otel.LevelError
		e.Err = errEv.Message
	}
	s.diag.Emit(e)
	logging.Info("run finished", "run", s.ID, "phase", s.vm.Phase(), "events", stats.Events, "dropped", stats.Dropped)
}

func (s *Session) onDrop(d sse.Diagnostic) {
	s.diag.Emit(otel.Event{
		Level:  otel.LevelWarn,
		Kind:   otel.KindFrameDropped,
		Reason: string(d.Reason),
		Err:    errString(d.Err),
		Msg:    d.Frame,
	})
	logging.Debug("frame dropped", "run", s.ID, "reason", d.Reason, "err", d.Err)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
