package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abelbrown/refcheck/internal/otel"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "JSONL diagnostics viewer",
		Args:  cobra.NoArgs,
		RunE:  runEvents,
	}
	cmd.Flags().Int("tail", 50, "Number of recent lines to show")
	cmd.Flags().BoolP("follow", "f", false, "Follow mode (like tail -f)")
	cmd.Flags().String("kind", "", "Filter by event kind prefix (e.g. 'frame')")
	cmd.Flags().String("level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().String("comp", "", "Filter by component name")
	cmd.Flags().String("run", "", "Filter by run ID")
	return cmd
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	tail, _ := flags.GetInt("tail")
	follow, _ := flags.GetBool("follow")
	kind, _ := flags.GetString("kind")
	level, _ := flags.GetString("level")
	comp, _ := flags.GetString("comp")
	runID, _ := flags.GetString("run")

	logPath := cfg.EventLogPath()
	f, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Event log not found at %s\n", logPath)
		fmt.Fprintf(os.Stderr, "  Run refcheck first to generate events.\n")
		return err
	}
	defer f.Close()

	filter := otel.Filter{
		KindPrefix: kind,
		MinLevel:   otel.Level(level),
		Comp:       comp,
		RunID:      runID,
	}

	lines, err := otel.ReadTail(f, tail, filter)
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Println(formatEvent(l, jsonOutput))
	}
	if !follow {
		return nil
	}

	// The file offset is at EOF after ReadTail; poll for appended lines.
	reader := bufio.NewReader(f)
	for {
		raw, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}
		l, ok := otel.DecodeLine(raw)
		if ok && filter.Match(l.Event) {
			fmt.Println(formatEvent(l, jsonOutput))
		}
	}
}

func formatEvent(l otel.Line, raw bool) string {
	if raw {
		return string(l.Raw)
	}
	ev := l.Event
	ts := ev.Time.Format("15:04:05.000")
	lvl := strings.ToUpper(string(ev.Level))
	if lvl == "" {
		lvl = "?"
	}

	parts := []string{fmt.Sprintf("%s %-5s [%-7s] %-18s", ts, lvl, ev.Comp, ev.Kind)}

	if ev.RunID != "" {
		parts = append(parts, "run="+shortRunID(ev.RunID))
	}
	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Bytes > 0 {
		parts = append(parts, fmt.Sprintf("bytes=%d", ev.Bytes))
	}
	if ev.Model != "" {
		parts = append(parts, "model="+ev.Model)
	}
	if ev.Reason != "" {
		parts = append(parts, "reason="+ev.Reason)
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}

	return strings.Join(parts, " ")
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
