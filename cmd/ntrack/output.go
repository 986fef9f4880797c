package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/ntrack/internal/engine"
	"github.com/pders01/ntrack/internal/fetch"
	"github.com/pders01/ntrack/internal/search"
	"github.com/pders01/ntrack/internal/tracker"
)

const appName = "ntrack"

var logoLines = []string{
	"█▄  █ ▀█▀ █▀▀▄ ▄▀▀▄ ▄▀▀▀ █  ▄▀",
	"█ ▀▄█  █  █▄▄▀ █▄▄█ █    █▄▀  ",
	"█   █  █  █  █ █  █ ▀▄▄▄ █  ▀▄",
}

var bannerColors = []lipgloss.Color{
	lipgloss.Color("#FF6B6B"),
	lipgloss.Color("#FFA86B"),
	lipgloss.Color("#95E1D3"),
	lipgloss.Color("#4ECDC4"),
}

var (
	primaryColor   = lipgloss.Color("#FF6B6B")
	secondaryColor = lipgloss.Color("#4ECDC4")
	mutedColor     = lipgloss.Color("#94A3B8")
	freshColor     = lipgloss.Color("#FFE66D")
	errorColor     = lipgloss.Color("#EF4444")
	successColor   = lipgloss.Color("#10B981")

	titleStyle   = lipgloss.NewStyle().Foreground(secondaryColor).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(primaryColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	freshStyle   = lipgloss.NewStyle().Foreground(freshColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
)

func renderBanner(tagline string) string {
	lines := make([]string, 0, len(logoLines)+2)
	for i, line := range logoLines {
		style := lipgloss.NewStyle().Foreground(bannerColors[i%len(bannerColors)]).Bold(true)
		lines = append(lines, style.Render(line))
	}
	lines = append(lines, "", mutedStyle.Render(tagline))

	border := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(secondaryColor).
		Padding(1, 3)
	return border.Render(lipgloss.JoinVertical(lipgloss.Center, lines...))
}

// relativeTime renders how long ago t was, coarsely.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncateEnd shortens s to at most limit runes, ending in an ellipsis.
func truncateEnd(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}

const contentWidth = 72

func writeTracker(w io.Writer, t *tracker.Tracker, now time.Time) {
	header := titleStyle.Render(t.DisplayTitle()) + " " + labelStyle.Render("["+t.Type.Label()+"]")
	if t.IsFresh(now) {
		header += " " + freshStyle.Render("NEW")
	}
	fmt.Fprintln(w, header)

	content := "no content yet"
	if t.FeedContent != nil && t.FeedContent.DisplayedContent != "" {
		content = strings.Join(strings.Fields(t.FeedContent.DisplayedContent), " ")
	}
	fmt.Fprintf(w, "  %s\n", truncateEnd(content, contentWidth))

	meta := fmt.Sprintf("  %s · checked %s · every %s · %d/%d requests",
		shortID(t.ID),
		relativeTime(t.LastChecked, now),
		t.UpdateInterval,
		t.RequestCount,
		t.DailyRequestLimit,
	)
	if t.CoolingDown(now) {
		meta += " · limited until " + t.RateLimitedUntil.Local().Format("Jan 2 15:04")
	}
	fmt.Fprintln(w, mutedStyle.Render(meta))

	if t.LastError != "" {
		fmt.Fprintf(w, "  %s\n", errorStyle.Render(truncateEnd(t.LastError, contentWidth)))
	}
}

func writeTrackers(w io.Writer, list []*tracker.Tracker, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No trackers yet. Add one with: ntrack add <source>"))
		return
	}
	for i, t := range list {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeTracker(w, t, now)
	}
}

func writeOutcome(w io.Writer, out engine.Outcome, now time.Time) {
	switch {
	case out.Err != nil:
		fmt.Fprintln(w, errorStyle.Render("update failed: "+out.Err.Error()))
	case out.New:
		fmt.Fprintln(w, successStyle.Render("new content"))
	case out.Fetched():
		fmt.Fprintln(w, mutedStyle.Render("no new content"))
	default:
		fmt.Fprintln(w, mutedStyle.Render("skipped: "+out.Verdict.String()))
	}
	if out.Tracker != nil {
		writeTracker(w, out.Tracker, now)
	}
}

func writeReport(w io.Writer, r engine.BatchReport) {
	fmt.Fprintf(w, "%d trackers: %d fetched, %d new, %d failed, %d skipped in %s\n",
		r.Total, r.Fetched, r.New, r.Failed, r.Skipped, r.Duration.Round(time.Millisecond))
}

func writeKeys(w io.Writer, keys []fetch.KeyInfo) {
	if len(keys) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no keys found"))
		return
	}
	width := 0
	for _, k := range keys {
		width = max(width, len(k.Path))
	}
	for _, k := range keys {
		fmt.Fprintf(w, "%-*s  %s  %s\n", width, k.Path, labelStyle.Render(fmt.Sprintf("%-7s", k.Kind)), mutedStyle.Render(k.Preview))
	}
}

func writeResults(w io.Writer, results []*search.Result, now time.Time) {
	if len(results) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no matches"))
		return
	}
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeTracker(w, r.Tracker, now)
	}
}

// shortID is enough of a UUIDv7 to tell trackers apart; its head is the
// timestamp, so the tail is used.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
