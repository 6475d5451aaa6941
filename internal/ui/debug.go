package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/refcheck/internal/otel"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// debugOverlay renders the debug panel: overall stream stats, the active
// run's own events when runID is set, then recent events of all runs.
// Returns empty string if ring is nil.
func debugOverlay(ring *otel.RingBuffer, runID string, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Stream Stats"))
	lines = append(lines, fmt.Sprintf("  Uploads:    %d started, %d errors",
		stats[otel.KindUploadStart], stats[otel.KindUploadError]))
	lines = append(lines, fmt.Sprintf("  Streams:    %d ended, %d errors, %d cancelled",
		stats[otel.KindStreamEnd], stats[otel.KindStreamError], stats[otel.KindStreamCancel]))
	lines = append(lines, fmt.Sprintf("  Frames:     %d dropped, %d discarded",
		stats[otel.KindFrameDropped], stats[otel.KindFrameDiscarded]))
	lines = append(lines, fmt.Sprintf("  History:    %d saved, %d errors",
		stats[otel.KindRunSaved], stats[otel.KindStoreError]))
	buffer := fmt.Sprintf("  Buffer:     %d / %d events", ring.Len(), ring.Cap())
	if n := ring.Evicted(); n > 0 {
		buffer += fmt.Sprintf(", %d evicted", n)
	}
	lines = append(lines, buffer, "")

	if runID != "" {
		events := ring.ForRun(runID)
		runStats := ring.RunStats(runID)
		lines = append(lines, DebugHeaderStyle.Render("Current Run "+shortID(runID)))
		lines = append(lines, fmt.Sprintf("  Events:     %d buffered, %d dropped frames, %d discarded",
			len(events), runStats[otel.KindFrameDropped], runStats[otel.KindFrameDiscarded]))
		if len(events) > 5 {
			events = events[len(events)-5:]
		}
		for _, e := range events {
			lines = append(lines, debugEventLine(e, false))
		}
		lines = append(lines, "")
	}

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range ring.Last(20) {
		lines = append(lines, debugEventLine(e, true))
	}

	// Truncate to fit terminal height (subtract chrome added by DebugPanel border/padding)
	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 76
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	content := strings.Join(lines, "\n")
	return DebugPanel.Width(panelWidth).Render(content)
}

func debugEventLine(e otel.Event, withRun bool) string {
	line := fmt.Sprintf("  %6s  %-18s", formatAge(time.Since(e.Time)), string(e.Kind))
	if e.Reason != "" {
		line += "  " + e.Reason
	}
	if e.Msg != "" {
		line += "  " + truncateRunes(e.Msg, 40)
	}
	if e.Err != "" {
		line += "  ERR:" + truncateRunes(e.Err, 30)
	}
	if withRun && e.RunID != "" {
		line += "  run:" + shortID(e.RunID)
	}
	return line
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// debugStatusBar renders the status bar for the debug overlay.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("?") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
