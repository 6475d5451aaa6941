package session

import (
	"fmt"

	"github.com/abelbrown/refcheck/internal/logging"
	"github.com/abelbrown/refcheck/internal/otel"
	"github.com/abelbrown/refcheck/internal/store"
)

// Recorder persists finished runs. *store.Store implements it.
type Recorder interface {
	SaveRun(run store.Run) error
}

// Record returns the run as it would be saved to history.
func (s *Session) Record() store.Run {
	finished := s.finishedAt
	if finished.IsZero() {
		finished = s.StartedAt.Add(s.Elapsed())
	}
	return store.Run{
		ID:         s.ID,
		FileName:   s.FileName,
		Model:      s.Model,
		StartedAt:  s.StartedAt,
		FinishedAt: finished,
		Bytes:      s.bytes,
		Dropped:    s.decoder.Stats().Dropped,
		Snapshot:   s.Snapshot(),
	}
}

// Save writes a finished run to r. Runs that were cancelled or are still
// in progress are not saved; Save reports false for them.
func (s *Session) Save(r Recorder) (bool, error) {
	if !s.Snapshot().Finished() {
		return false, nil
	}
	if err := r.SaveRun(s.Record()); err != nil {
		s.diag.Error(otel.KindStoreError, err)
		logging.Error("save run failed", "run", s.ID, "err", err)
		return false, fmt.Errorf("save run %s: %w", s.ID, err)
	}
	s.diag.Info(otel.KindRunSaved, s.FileName)
	logging.Debug("run saved", "run", s.ID)
	return true, nil
}
