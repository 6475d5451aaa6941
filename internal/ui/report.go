package ui

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/refcheck/internal/event"
	"github.com/abelbrown/refcheck/internal/viewmodel"
)

// NA is shown for fields the service could not determine.
const NA = "N/A"

// welcomeText is shown before the first run.
const welcomeText = "Check the references of a paper.\nPress o to choose a PDF, m to pick a model, then enter to upload."

// RenderReport renders everything a snapshot holds: error banner, paper
// metadata, summary cards, the reference table and the status log.
// It is a pure function of the snapshot and is shared by the TUI and
// `refcheck history show`.
func RenderReport(snap viewmodel.Snapshot, width int) string {
	if width < 20 {
		width = 20
	}

	var sections []string
	if snap.ErrorMessage != "" {
		sections = append(sections, renderErrorBanner(snap.ErrorMessage, width))
	}
	if isBlank(snap) {
		sections = append(sections, HelpStyle.Render(welcomeText))
	}
	if snap.Metadata != nil {
		sections = append(sections, renderMetadata(*snap.Metadata, width))
	}
	if snap.Summary != nil {
		sections = append(sections, renderSummaryCards(*snap.Summary, snap.IsProcessing))
	}
	if len(snap.References) > 0 {
		sections = append(sections, renderReferences(snap.References, width))
	}
	if len(snap.Log) > 0 {
		sections = append(sections, renderLog(snap.Log, width))
	}
	return strings.Join(sections, "\n")
}

func isBlank(snap viewmodel.Snapshot) bool {
	return snap.Summary == nil && snap.Metadata == nil && !snap.IsProcessing &&
		snap.ErrorMessage == "" && len(snap.References) == 0 && len(snap.Log) == 0
}

func renderErrorBanner(msg string, width int) string {
	return ErrorStyle.Width(width).Render("✗ " + msg)
}

func renderMetadata(md event.Metadata, width int) string {
	title := md.Title
	if title == "" {
		title = "Title not found"
	}

	lines := []string{
		SectionHeader.Render("Paper"),
		" " + ValueStyle.Bold(true).Width(width-2).Render(title),
		" " + field("Authors", strings.Join(md.Authors, ", ")),
		" " + field("Year", yearString(md.Year)) + LabelStyle.Render(" | ") + field("Affiliation", md.Affiliation),
	}
	return strings.Join(lines, "\n")
}

func field(label, value string) string {
	return LabelStyle.Render(label+": ") + orNA(value)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return PlaceholderStyle.Render(NA)
	}
	return ValueStyle.Render(s)
}

func yearString(y int) string {
	if y <= 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func renderSummaryCards(s event.Summary, processing bool) string {
	card := func(title string, n int) string {
		return SummaryCard.Render(LabelStyle.Render(title) + "\n" + SummaryCardValue.Render(strconv.Itoa(n)))
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top,
		card("Total", s.TotalReferences),
		card("Verified", s.VerifiedCount),
		card("Unverified", s.Unverified()),
	)
	if processing && s.Pending() > 0 {
		row += "\n" + LabelStyle.Render(fmt.Sprintf(" %d of %d processed", s.Processed(), s.TotalReferences))
	}
	return row
}

// StatusLabel is the status column text: "Verified" or "Unverified: <reason>".
func StatusLabel(r event.Reference) string {
	if r.Status.Verified() {
		return "Verified"
	}
	reason := strings.TrimSpace(string(r.Status))
	if reason == "" {
		reason = "Unknown"
	}
	return "Unverified: " + reason
}

func renderReferences(refs []event.Reference, width int) string {
	lines := []string{SectionHeader.Render(fmt.Sprintf("References (%d)", len(refs)))}
	for i, r := range refs {
		lines = append(lines, renderReference(i+1, r, width))
	}
	return strings.Join(lines, "\n")
}

func renderReference(n int, r event.Reference, width int) string {
	const indent = "     "
	inner := width - len(indent)
	if inner < 10 {
		inner = 10
	}

	badge := VerifiedBadge
	if !r.Status.Verified() {
		badge = UnverifiedBadge
	}
	head := fmt.Sprintf("%3d. ", n) + badge.Render(StatusLabel(r))
	if r.VerificationScore > 0 {
		head += LabelStyle.Render(fmt.Sprintf("  score %.1f", r.VerificationScore))
	}

	title := r.Title
	if title == "" {
		title = truncateRunes(r.RawText, inner*2)
	}

	lines := []string{
		head,
		indentBlock(ValueStyle.Width(inner).Render(title), indent),
		indent + field("Authors", strings.Join(r.Authors, ", ")) + LabelStyle.Render(" | ") + field("Year", yearString(r.Year)),
		indent + field("Source", r.Source),
	}
	if u := r.DOIURL(); u != "" {
		lines = append(lines, indent+LabelStyle.Render("DOI: ")+LinkStyle.Render(r.VerifiedDOI)+" "+LabelStyle.Render(u))
	}
	if r.SourceURL != "" {
		lines = append(lines, indent+LabelStyle.Render("Link: ")+LinkStyle.Render(r.SourceURL))
	}
	if !r.Status.Verified() {
		suggestion := r.FormatSuggestion
		if suggestion == "" {
			suggestion = NA
		}
		lines = append(lines, indentBlock(SuggestionStyle.Width(inner).Render("Suggestion: "+suggestion), indent))
	}
	return strings.Join(lines, "\n")
}

func renderLog(log []string, width int) string {
	lines := []string{SectionHeader.Render("Log")}
	for _, l := range log {
		lines = append(lines, LogLine.Width(width).Render(l))
	}
	return strings.Join(lines, "\n")
}

func indentBlock(s, indent string) string {
	return indent + strings.ReplaceAll(s, "\n", "\n"+indent)
}

// truncateRunes shortens s to at most n runes, marking the cut with "…".
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
