package ui

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/refcheck/internal/otel"
	"github.com/abelbrown/refcheck/internal/session"
	"github.com/abelbrown/refcheck/internal/store"
	"github.com/abelbrown/refcheck/internal/transport"
	"github.com/abelbrown/refcheck/internal/viewmodel"
)

var testModels = []string{"gemini-1.5-pro", "deepseek-chat"}

func frame(kind, payload string) string {
	return `data: {"type":"` + kind + `","payload":` + payload + "}\n\n"
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// memRecorder collects saved runs.
type memRecorder struct {
	mu   sync.Mutex
	runs []store.Run
}

func (m *memRecorder) SaveRun(run store.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRecorder) saved() []store.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Run(nil), m.runs...)
}

func saveTo(rec session.Recorder) func(*session.Session) tea.Cmd {
	return func(s *session.Session) tea.Cmd {
		return func() tea.Msg {
			_, err := s.Save(rec)
			return RunSaved{RunID: s.ID, Err: err}
		}
	}
}

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestApp(t *testing.T, handler http.HandlerFunc, rec session.Recorder) App {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := AppConfig{
		Client:       transport.New(transport.Config{Endpoint: srv.URL}),
		Diag:         otel.NewNullLogger(),
		Ring:         otel.NewRingBuffer(64),
		Models:       testModels,
		DefaultModel: "deepseek-chat",
	}
	if rec != nil {
		cfg.SaveRun = saveTo(rec)
	}
	app := NewApp(cfg)
	model, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return model.(App)
}

// pump runs cmd and every command it produces, feeding the resulting
// messages back into m, until nothing is left. Spinner ticks are dropped.
func pump(t *testing.T, m tea.Model, cmd tea.Cmd) tea.Model {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("pump: timed out")
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil, spinner.TickMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			var next tea.Cmd
			m, next = m.Update(msg)
			queue = append(queue, next)
		}
	}
	return m
}

func TestNewAppDefaults(t *testing.T) {
	app := NewApp(AppConfig{Models: testModels, DefaultModel: "deepseek-chat"})

	if app.Model() != "deepseek-chat" {
		t.Errorf("Model() = %q, want deepseek-chat", app.Model())
	}
	if !app.input.Focused() {
		t.Error("file input should be focused without an initial path")
	}
	if app.Init() == nil {
		t.Error("Init should return the cursor blink command")
	}
	if got := app.Snapshot().Phase; got != viewmodel.Idle {
		t.Errorf("phase = %v, want idle", got)
	}
	if !strings.Contains(app.View(), "Press o to choose a PDF") {
		t.Errorf("idle view should show the welcome text, got:\n%s", app.View())
	}
}

func TestInitWithInitialPathStartsUpload(t *testing.T) {
	app := NewApp(AppConfig{Models: testModels, DefaultModel: "gemini-1.5-pro", InitialPath: "/tmp/x.pdf"})

	if app.input.Focused() {
		t.Error("input should not be focused when a path is given")
	}
	msg := app.Init()()
	req, ok := msg.(uploadRequested)
	if !ok || req.path != "/tmp/x.pdf" {
		t.Errorf("Init() msg = %#v, want uploadRequested", msg)
	}
}

func TestModelCycle(t *testing.T) {
	app := NewApp(AppConfig{Models: testModels, DefaultModel: "gemini-1.5-pro"})

	model, _ := app.Update(tea.KeyMsg{Type: tea.KeyEsc}) // leave the input
	model, _ = model.Update(keyRune('m'))
	if got := model.(App).Model(); got != "deepseek-chat" {
		t.Errorf("after m: %q, want deepseek-chat", got)
	}
	model, _ = model.Update(keyRune('m'))
	if got := model.(App).Model(); got != "gemini-1.5-pro" {
		t.Errorf("selector should wrap, got %q", got)
	}
}

func TestStartUploadValidatesPath(t *testing.T) {
	app := NewApp(AppConfig{Models: testModels, DefaultModel: "gemini-1.5-pro"})

	model, cmd := app.startUpload("  ")
	if cmd != nil || model.(App).Run() != nil {
		t.Error("empty path should not start a run")
	}
	if !strings.Contains(model.(App).notice, "Choose a PDF") {
		t.Errorf("notice = %q", model.(App).notice)
	}

	model, cmd = app.startUpload("notes.txt")
	if cmd != nil || model.(App).Run() != nil {
		t.Error("non-PDF path should not start a run")
	}
}

func TestFullRun(t *testing.T) {
	body := frame("status", `{"message":"Reading and parsing PDF..."}`) +
		frame("metadata", `{"title":"Deep nets","authors":["Doe, J."],"year":2020}`) +
		frame("reference", `{"raw_text":"[1] x","status":"Verified","title":"Attention","verified_doi":"10.1/abc","verification_score":97}`) +
		frame("reference", `{"raw_text":"[2] y","status":"Not Found","format_suggestion":"Add the venue","verification_score":0}`) +
		frame("summary", `{"total_references":2,"verified_count":1,"not_found_count":1,"format_error_count":0}`) +
		frame("end", `{"message":"Verification process complete."}`)

	gotModel := make(chan string, 1)
	rec := &memRecorder{}
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		gotModel <- r.FormValue("model_name")
		flusher := w.(http.Flusher)
		for _, part := range []string{body[:50], body[50:200], body[200:]} {
			io.WriteString(w, part)
			flusher.Flush()
		}
	}, rec)

	model, cmd := app.startUpload(writePDF(t))
	if model.(App).Snapshot().Phase != viewmodel.Uploading {
		t.Fatalf("phase = %v, want uploading", model.(App).Snapshot().Phase)
	}
	model = pump(t, model, cmd)

	a := model.(App)
	snap := a.Snapshot()
	if snap.Phase != viewmodel.Completed || snap.IsProcessing {
		t.Fatalf("phase = %v processing = %v, want completed and idle", snap.Phase, snap.IsProcessing)
	}
	if m := <-gotModel; m != "deepseek-chat" {
		t.Errorf("model_name = %q, want deepseek-chat", m)
	}
	if len(snap.References) != 2 {
		t.Errorf("references = %d, want 2", len(snap.References))
	}
	if saved := rec.saved(); len(saved) != 1 || saved[0].ID != a.Run().ID {
		t.Errorf("saved runs = %+v, want the finished run", saved)
	}
	if !strings.Contains(a.notice, "Saved to history") {
		t.Errorf("notice = %q", a.notice)
	}

	view := a.View()
	for _, want := range []string{"Deep nets", "Verified", "Unverified: Not Found", "Add the venue", "https://doi.org/10.1/abc", "Complete"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestStreamClosedAfterFinishIsIgnored(t *testing.T) {
	rec := &memRecorder{}
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, frame("end", `{"message":"done"}`))
	}, rec)

	model, cmd := app.startUpload(writePDF(t))
	model = pump(t, model, cmd)
	runID := model.(App).Run().ID
	if len(rec.saved()) != 1 {
		t.Fatalf("saved runs = %d, want 1", len(rec.saved()))
	}

	model, cmd = model.Update(StreamClosed{RunID: runID})
	if cmd != nil {
		t.Error("close of a finished run should schedule nothing")
	}
	pump(t, model, cmd)
	if len(rec.saved()) != 1 {
		t.Errorf("finished run was saved %d times", len(rec.saved()))
	}
	if model.(App).Snapshot().Phase != viewmodel.Completed {
		t.Errorf("phase = %v, want completed", model.(App).Snapshot().Phase)
	}
}

func TestUploadFailure(t *testing.T) {
	rec := &memRecorder{}
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}, rec)

	model, cmd := app.startUpload(writePDF(t))
	model = pump(t, model, cmd)

	snap := model.(App).Snapshot()
	if snap.Phase != viewmodel.Failed {
		t.Fatalf("phase = %v, want failed", snap.Phase)
	}
	if !strings.HasPrefix(snap.ErrorMessage, session.CriticalPrefix) {
		t.Errorf("error = %q, want critical prefix", snap.ErrorMessage)
	}
	if !strings.Contains(model.View(), "503") {
		t.Errorf("view should show the status code, got:\n%s", model.View())
	}
	if len(rec.saved()) != 1 {
		t.Error("failed runs are saved to history")
	}
}

func TestErrorEventFailsRun(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, frame("status", `{"message":"start"}`)+frame("error", `{"message":"Failed to parse PDF"}`))
	}, nil)

	model, cmd := app.startUpload(writePDF(t))
	model = pump(t, model, cmd)

	snap := model.(App).Snapshot()
	if snap.Phase != viewmodel.Failed || snap.ErrorMessage != "Failed to parse PDF" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCancelFreezesRunAndIgnoresLateChunks(t *testing.T) {
	rec := &memRecorder{}
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, frame("status", `{"message":"one"}`))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}, rec)

	model, cmd := app.startUpload(writePDF(t))
	a := model.(App)
	runID := a.Run().ID

	// Open the stream, then read until the first event is applied.
	var opened UploadOpened
	for _, c := range cmd().(tea.BatchMsg) {
		if msg, ok := c().(UploadOpened); ok {
			opened = msg
		}
	}
	if opened.Err != nil {
		t.Fatalf("open: %v", opened.Err)
	}
	model, cmd = a.Update(opened)
	for len(model.(App).Snapshot().Log) == 0 {
		model, cmd = model.Update(cmd())
	}

	model, cmd = model.Update(keyRune('x'))
	frozen := model.(App).Snapshot()
	if frozen.Phase != viewmodel.Cancelled || frozen.IsProcessing {
		t.Fatalf("after cancel: phase = %v processing = %v", frozen.Phase, frozen.IsProcessing)
	}
	pump(t, model, cmd) // closes the stream

	late := []tea.Msg{
		ChunkReceived{RunID: runID, Chunk: transport.Chunk{Data: []byte(frame("status", `{"message":"two"}`))}},
		ChunkReceived{RunID: runID, Chunk: transport.Chunk{Data: []byte(frame("end", `{"message":"three"}`)), Done: true}},
		StreamClosed{RunID: runID},
	}
	for _, msg := range late {
		model, _ = model.Update(msg)
	}

	got := model.(App).Snapshot()
	if len(got.Log) != 1 || got.Log[0] != "one" || got.Phase != viewmodel.Cancelled {
		t.Errorf("late chunks changed the run: %+v", got)
	}
	if len(rec.saved()) != 0 {
		t.Error("cancelled runs are not saved")
	}
}

func TestStaleRunMessagesIgnored(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	model, _ := app.startUpload(writePDF(t))

	model, cmd := model.Update(ChunkReceived{RunID: "some-old-run", Chunk: transport.Chunk{Data: []byte(frame("status", `{"message":"ghost"}`))}})
	if cmd != nil {
		t.Error("stale chunk should not schedule another read")
	}
	snap := model.(App).Snapshot()
	if len(snap.Log) != 0 || snap.Phase != viewmodel.Uploading {
		t.Errorf("stale chunk reached the active run: %+v", snap)
	}

	model, _ = model.Update(StreamClosed{RunID: "some-old-run"})
	if model.(App).Snapshot().Phase != viewmodel.Uploading {
		t.Error("stale close reached the active run")
	}
}

func TestKeysIgnoredWhileRunning(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	model, _ := app.startUpload(writePDF(t))
	runID := model.(App).Run().ID

	model, _ = model.Update(keyRune('m'))
	if model.(App).Model() != "deepseek-chat" {
		t.Error("model selector is locked while a run is in progress")
	}
	model, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || model.(App).Run().ID != runID {
		t.Error("enter should not start a second run")
	}
	model.Update(keyRune('x'))
}

func TestQuitCancelsRun(t *testing.T) {
	app := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	model, _ := app.startUpload(writePDF(t))

	model, cmd := model.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("q should return a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
	if model.(App).Snapshot().Phase != viewmodel.Cancelled {
		t.Error("quitting cancels the active run")
	}
}
