package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/abelbrown/refcheck/internal/logging"
	"github.com/abelbrown/refcheck/internal/otel"
	"github.com/abelbrown/refcheck/internal/session"
	"github.com/abelbrown/refcheck/internal/transport"
	"github.com/abelbrown/refcheck/internal/viewmodel"
)

// chromeLines is the number of lines outside the report viewport:
// header, input bar and status bar.
const chromeLines = 3

// AppConfig holds the dependencies of the App.
type AppConfig struct {
	Client *transport.Client
	Diag   *otel.Logger     // optional
	Ring   *otel.RingBuffer // optional: enables the debug overlay

	// SaveRun persists a finished run. Optional. The session no longer
	// changes when SaveRun is called.
	SaveRun func(s *session.Session) tea.Cmd

	Models       []string
	DefaultModel string

	// InitialPath, if set, is uploaded as soon as the program starts.
	InitialPath string
}

// uploadRequested starts an upload from Init.
type uploadRequested struct{ path string }

// App is the root Bubble Tea model.
//
// Update is the only writer of the active session. The transport goroutine
// hands chunks over through the stream's channel; waitForChunk turns each
// one into a ChunkReceived message.
type App struct {
	client  *transport.Client
	diag    *otel.Logger
	ring    *otel.RingBuffer
	saveRun func(s *session.Session) tea.Cmd

	models      []string
	modelIdx    int
	initialPath string

	// Active run
	run    *session.Session
	stream *transport.Stream
	cancel context.CancelFunc

	// Widgets
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	// UI state
	width     int
	height    int
	showDebug bool
	notice    string
}

// NewApp creates an App with the given dependencies.
func NewApp(cfg AppConfig) App {
	models := cfg.Models
	if len(models) == 0 {
		models = []string{cfg.DefaultModel}
	}
	idx := 0
	for i, m := range models {
		if m == cfg.DefaultModel {
			idx = i
		}
	}

	ti := textinput.New()
	ti.Prompt = InputBarPrompt.Render("PDF ") + " "
	ti.Placeholder = "path/to/paper.pdf"
	ti.CharLimit = 4096
	ti.SetValue(cfg.InitialPath)
	if cfg.InitialPath == "" {
		ti.Focus()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StatusBarKey

	a := App{
		client:      cfg.Client,
		diag:        cfg.Diag,
		ring:        cfg.Ring,
		saveRun:     cfg.SaveRun,
		models:      models,
		modelIdx:    idx,
		initialPath: cfg.InitialPath,
		input:       ti,
		spinner:     sp,
		viewport:    viewport.New(80, 20),
	}
	a.refresh()
	return a
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	if a.initialPath != "" {
		path := a.initialPath
		return func() tea.Msg { return uploadRequested{path: path} }
	}
	return textinput.Blink
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = max(1, msg.Height-chromeLines)
		a.input.Width = max(10, msg.Width-30)
		a.refresh()
		return a, nil

	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd

	case spinner.TickMsg:
		if !a.running() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case uploadRequested:
		return a.startUpload(msg.path)

	case UploadOpened:
		return a.handleUploadOpened(msg)

	case ChunkReceived:
		return a.handleChunk(msg)

	case StreamClosed:
		if !a.isActive(msg.RunID) || a.run.Done() {
			return a, nil
		}
		a.diag.TraceMsg(otel.KindMsgReceived, msg.RunID, msg)
		a.run.Close(nil)
		return a.finish()

	case RunSaved:
		if msg.Err != nil {
			a.notice = "History save failed: " + msg.Err.Error()
		} else if a.isActive(msg.RunID) {
			a.notice = "Saved to history as " + shortID(msg.RunID)
		}
		return a, nil
	}

	if a.input.Focused() {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a.quit()
	}

	if a.input.Focused() {
		switch msg.String() {
		case "enter":
			a.input.Blur()
			return a.startUpload(a.input.Value())
		case "esc":
			a.input.Blur()
			return a, nil
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return a.quit()

	case key.Matches(msg, keys.Debug):
		a.showDebug = !a.showDebug
		return a, nil

	case a.showDebug:
		// The overlay swallows everything but its own toggle and quit.
		return a, nil

	case key.Matches(msg, keys.Cancel):
		return a.cancelRun()

	case key.Matches(msg, keys.Open):
		if a.running() {
			return a, nil
		}
		return a, a.input.Focus()

	case key.Matches(msg, keys.Submit):
		return a.startUpload(a.input.Value())

	case key.Matches(msg, keys.Model):
		if a.running() {
			return a, nil
		}
		a.modelIdx = (a.modelIdx + 1) % len(a.models)
		return a, nil

	case key.Matches(msg, keys.Home):
		a.viewport.GotoTop()
		return a, nil

	case key.Matches(msg, keys.End):
		a.viewport.GotoBottom()
		return a, nil
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

// startUpload begins a new run for path. It is a no-op while a run is
// in progress.
func (a App) startUpload(path string) (tea.Model, tea.Cmd) {
	if a.running() {
		return a, nil
	}
	path = strings.TrimSpace(path)
	if path == "" {
		a.notice = "Choose a PDF first (press o)"
		return a, nil
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		a.notice = "Only PDF files can be checked"
		return a, nil
	}
	path = expandHome(path)

	up := transport.Upload{Path: path, Model: a.Model()}
	s := session.New(up, a.diag)
	ctx, cancel := context.WithCancel(context.Background())

	a.input.Blur()
	a.run = s
	a.stream = nil
	a.cancel = cancel
	a.notice = ""
	a.refresh()
	a.viewport.GotoTop()
	logging.Debug("ui: upload requested", "run", s.ID, "file", path)

	client := a.client
	open := func() tea.Msg {
		st, err := s.Open(ctx, client, up)
		return UploadOpened{RunID: s.ID, Stream: st, Err: err}
	}
	return a, tea.Batch(open, a.spinner.Tick)
}

func (a App) handleUploadOpened(msg UploadOpened) (tea.Model, tea.Cmd) {
	if !a.isActive(msg.RunID) || a.run.Done() {
		// Cancelled or superseded before the response arrived.
		return a, closeStream(msg.Stream)
	}
	a.diag.TraceMsg(otel.KindMsgReceived, msg.RunID, msg)
	if msg.Err != nil {
		a.run.Close(msg.Err)
		return a.finish()
	}
	a.stream = msg.Stream
	return a, waitForChunk(msg.RunID, msg.Stream)
}

func (a App) handleChunk(msg ChunkReceived) (tea.Model, tea.Cmd) {
	if !a.isActive(msg.RunID) || a.run.Done() {
		return a, nil
	}
	a.diag.TraceMsg(otel.KindMsgReceived, msg.RunID, msg)

	if a.run.Feed(msg.Chunk.Data) {
		a.refresh()
	}
	if msg.Chunk.Done {
		a.run.Close(msg.Chunk.Err)
		return a.finish()
	}
	if a.run.Done() {
		return a.finish()
	}
	return a, waitForChunk(msg.RunID, a.stream)
}

// finish releases the transport of a run that reached a terminal phase
// and schedules the history save.
func (a App) finish() (tea.Model, tea.Cmd) {
	a.refresh()
	cmds := []tea.Cmd{closeStream(a.stream)}
	a.stream = nil
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.saveRun != nil && a.run.Snapshot().Finished() {
		cmds = append(cmds, a.saveRun(a.run))
	}
	return a, tea.Batch(cmds...)
}

func (a App) cancelRun() (tea.Model, tea.Cmd) {
	if !a.running() {
		return a, nil
	}
	a.run.Cancel()
	a.notice = "Cancelled"
	return a.finish()
}

func (a App) quit() (tea.Model, tea.Cmd) {
	if a.running() {
		a.run.Cancel()
	}
	if a.cancel != nil {
		a.cancel()
	}
	return a, tea.Quit
}

// running reports whether a run is uploading or streaming.
func (a App) running() bool {
	return a.run != nil && !a.run.Done()
}

func (a App) isActive(runID string) bool {
	return a.run != nil && a.run.ID == runID
}

// refresh re-renders the report into the viewport, following the tail
// while the user has not scrolled up.
func (a *App) refresh() {
	follow := a.viewport.AtBottom()
	a.viewport.SetContent(RenderReport(a.Snapshot(), a.viewport.Width))
	if follow && a.running() {
		a.viewport.GotoBottom()
	}
}

// waitForChunk blocks on the stream's next chunk.
func waitForChunk(runID string, st *transport.Stream) tea.Cmd {
	if st == nil {
		return nil
	}
	return func() tea.Msg {
		c, ok := <-st.Chunks()
		if !ok {
			return StreamClosed{RunID: runID}
		}
		return ChunkReceived{RunID: runID, Chunk: c}
	}
}

// closeStream closes st off the update goroutine; Close waits for the
// reader to exit.
func closeStream(st *transport.Stream) tea.Cmd {
	if st == nil {
		return nil
	}
	return func() tea.Msg {
		st.Close()
		return nil
	}
}

// View implements tea.Model.
func (a App) View() string {
	width := a.width
	if width == 0 {
		width = 80
	}

	if a.showDebug {
		if a.ring == nil {
			return HelpStyle.Render("Debug overlay unavailable (no diagnostics buffer).") + "\n" + debugStatusBar(width)
		}
		runID := ""
		if a.run != nil {
			runID = a.run.ID
		}
		return debugOverlay(a.ring, runID, width, a.height) + "\n" + debugStatusBar(width)
	}

	var b strings.Builder
	b.WriteString(a.renderHeader(width))
	b.WriteString("\n")
	b.WriteString(a.viewport.View())
	b.WriteString("\n")
	b.WriteString(InputBar.Width(width).Render(a.input.View()))
	b.WriteString("\n")
	b.WriteString(a.renderStatusBar(width))
	return b.String()
}

func (a App) renderHeader(width int) string {
	title := TitleStyle.Render("refcheck")
	model := ModelBadge.Render(a.Model())
	var file string
	if a.run != nil {
		file = LabelStyle.Render(a.run.FileName)
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(title + " " + model + file)
}

func (a App) renderStatusBar(width int) string {
	var left string
	switch {
	case a.run == nil:
		left = "Idle"
	case a.running():
		left = a.spinner.View() + " " + phaseLabel(a.run.Phase())
	default:
		left = phaseLabel(a.run.Phase())
	}
	if a.run != nil {
		stats := a.run.DecoderStats()
		left += fmt.Sprintf("  %s  %d events", humanize.Bytes(uint64(a.run.BytesReceived())), stats.Events)
		if stats.Dropped > 0 {
			left += fmt.Sprintf("  %d dropped", stats.Dropped)
		}
		left += "  " + a.run.Elapsed().Round(time.Second).String()
	}
	if a.notice != "" {
		left += "  " + a.notice
	}

	var hints []string
	if a.running() {
		hints = append(hints, StatusBarKey.Render("x")+StatusBarText.Render(":cancel"))
	} else {
		hints = append(hints,
			StatusBarKey.Render("o")+StatusBarText.Render(":open"),
			StatusBarKey.Render("m")+StatusBarText.Render(":model"),
			StatusBarKey.Render("enter")+StatusBarText.Render(":upload"),
		)
	}
	hints = append(hints,
		StatusBarKey.Render("j/k")+StatusBarText.Render(":scroll"),
		StatusBarKey.Render("?")+StatusBarText.Render(":debug"),
		StatusBarKey.Render("q")+StatusBarText.Render(":quit"),
	)
	right := strings.Join(hints, " ")

	padding := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		right = ""
		padding = max(1, width-lipgloss.Width(left)-2)
	}
	return StatusBar.Width(width).Render(left + strings.Repeat(" ", padding) + right)
}

func phaseLabel(p viewmodel.Phase) string {
	switch p {
	case viewmodel.Uploading:
		return "Uploading..."
	case viewmodel.Streaming:
		return "Verifying..."
	case viewmodel.Completed:
		return "Complete"
	case viewmodel.Failed:
		return "Failed"
	case viewmodel.Cancelled:
		return "Cancelled"
	default:
		return "Idle"
	}
}

// Model returns the selected model name.
func (a App) Model() string {
	return a.models[a.modelIdx]
}

// Snapshot returns the active run's view, or an idle one before the first run.
func (a App) Snapshot() viewmodel.Snapshot {
	if a.run == nil {
		return viewmodel.New().Snapshot()
	}
	return a.run.Snapshot()
}

// Run returns the active session, nil before the first upload.
func (a App) Run() *session.Session {
	return a.run
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
