package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/refcheck/internal/event"
	"github.com/abelbrown/refcheck/internal/viewmodel"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun(id string, started time.Time) Run {
	m := viewmodel.Fold([]event.Event{
		event.StatusEvent{Message: "Reading and parsing PDF..."},
		event.MetadataEvent{Metadata: event.Metadata{Title: "Deep nets", Authors: []string{"Doe, J.", "Roe, R."}, Year: 2020}},
		event.ReferenceEvent{Reference: event.Reference{
			RawText: "[1] a", Status: event.StatusVerified, Authors: []string{"A"}, Year: 2019,
			Title: "A", Source: "Crossref", VerifiedDOI: "10.1/abc", VerificationScore: 97.5,
		}},
		event.ReferenceEvent{Reference: event.Reference{
			RawText: "[2] b", Status: "Potential Fabrication", FormatSuggestion: "Check the venue",
		}},
		event.SummaryEvent{Summary: event.Summary{TotalReferences: 2, VerifiedCount: 1, NotFoundCount: 1}},
		event.EndEvent{Message: "Verification process complete."},
	})
	return Run{
		ID:         id,
		FileName:   "paper.pdf",
		Model:      "gemini-1.5-pro",
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		Bytes:      2048,
		Dropped:    1,
		Snapshot:   m.Snapshot(),
	}
}

func TestOpenCreatesTables(t *testing.T) {
	st := openTest(t)

	for _, table := range []string{"runs", "run_references", "run_log"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refcheck.db")
	st, err := Open(path)
	require.NoError(t, err)

	run := sampleRun("file-run", time.Now())
	require.NoError(t, st.SaveRun(run))
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.GetRun("file-run")
	require.NoError(t, err)
	assert.Equal(t, run.Snapshot.Log, got.Snapshot.Log)
}

func TestSaveAndGetRun(t *testing.T) {
	st := openTest(t)
	started := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	run := sampleRun("0b5c7a4e-1111-4c55-9d7e-5a6b7c8d9e0f", started)

	require.NoError(t, st.SaveRun(run))

	got, err := st.GetRun(run.ID)
	require.NoError(t, err)

	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.FileName, got.FileName)
	assert.Equal(t, run.Model, got.Model)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
	assert.True(t, run.FinishedAt.Equal(got.FinishedAt))
	assert.Equal(t, run.Bytes, got.Bytes)
	assert.Equal(t, run.Dropped, got.Dropped)

	want := run.Snapshot
	snap := got.Snapshot
	assert.Equal(t, viewmodel.Completed, snap.Phase)
	assert.False(t, snap.IsProcessing)
	assert.Equal(t, want.Log, snap.Log)
	assert.Equal(t, want.References, snap.References)
	assert.Equal(t, want.Summary, snap.Summary)
	assert.Equal(t, want.Metadata, snap.Metadata)
	assert.Equal(t, want.Events, snap.Events)
}

func TestSaveRunWithoutSummaryOrMetadata(t *testing.T) {
	st := openTest(t)
	m := viewmodel.Fold([]event.Event{event.ErrorEvent{Message: "Failed to parse PDF"}})
	run := Run{ID: "failed", FileName: "x.pdf", Model: "deepseek-chat", StartedAt: time.Now(), FinishedAt: time.Now(), Snapshot: m.Snapshot()}

	require.NoError(t, st.SaveRun(run))
	got, err := st.GetRun("failed")
	require.NoError(t, err)

	assert.Equal(t, viewmodel.Failed, got.Snapshot.Phase)
	assert.Equal(t, "Failed to parse PDF", got.Snapshot.ErrorMessage)
	assert.Nil(t, got.Snapshot.Summary)
	assert.Nil(t, got.Snapshot.Metadata)
	assert.Empty(t, got.Snapshot.References)
	assert.Equal(t, []string{"Error: Failed to parse PDF"}, got.Snapshot.Log)
}

func TestSaveRunReplaces(t *testing.T) {
	st := openTest(t)
	run := sampleRun("same", time.Now())
	require.NoError(t, st.SaveRun(run))

	run.Snapshot.References = run.Snapshot.References[:1]
	run.Snapshot.Log = []string{"only"}
	require.NoError(t, st.SaveRun(run))

	got, err := st.GetRun("same")
	require.NoError(t, err)
	assert.Len(t, got.Snapshot.References, 1)
	assert.Equal(t, []string{"only"}, got.Snapshot.Log)

	n, err := st.RunCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetRunByPrefix(t *testing.T) {
	st := openTest(t)
	now := time.Now()
	require.NoError(t, st.SaveRun(sampleRun("abc123", now)))
	require.NoError(t, st.SaveRun(sampleRun("abd456", now)))

	got, err := st.GetRun("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.ID)

	_, err = st.GetRun("ab")
	assert.ErrorIs(t, err, ErrAmbiguous)

	_, err = st.GetRun("zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetRun("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	st := openTest(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.SaveRun(sampleRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := st.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)

	r := runs[0]
	assert.Equal(t, viewmodel.Completed, r.Phase)
	assert.Equal(t, 2, r.References)
	require.NotNil(t, r.Summary)
	assert.Equal(t, 2, r.Summary.TotalReferences)
	assert.Equal(t, int64(2048), r.Bytes)
}

func TestListRunsEmpty(t *testing.T) {
	st := openTest(t)
	runs, err := st.ListRuns(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestConcurrentAccess(t *testing.T) {
	st := openTest(t)
	now := time.Now()

	var wg sync.WaitGroup
	errCh := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			if err := st.SaveRun(sampleRun(fmt.Sprintf("w-%d", n), now)); err != nil {
				errCh <- err
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, err := st.ListRuns(100); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}

	n, err := st.RunCount()
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}
