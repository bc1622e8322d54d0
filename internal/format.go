package internal

import (
	"fmt"
	"strings"
	"time"
)

// FormatAge renders an age in days as a compact human string.
func FormatAge(days float64) string {
	switch {
	case days < 1:
		hours := int(days * 24)
		if hours < 1 {
			hours = 1
		}
		return fmt.Sprintf("%dh ago", hours)
	case days < 7:
		return fmt.Sprintf("%dd ago", int(days))
	case days < 30:
		return fmt.Sprintf("%dw ago", int(days/7))
	case days < 365:
		return fmt.Sprintf("%dmo ago", int(days/30))
	default:
		return fmt.Sprintf("%dy ago", int(days/365))
	}
}

// UniquePrefix returns the minimum prefix length, at least floor, that
// keeps every id in the list distinct.
func UniquePrefix(ids []string, floor int) int {
	if len(ids) <= 1 {
		return floor
	}
	maxLen := 0
	for _, id := range ids {
		if len(id) > maxLen {
			maxLen = len(id)
		}
	}
	for length := floor; length < maxLen; length++ {
		seen := make(map[string]bool, len(ids))
		distinct := true
		for _, id := range ids {
			p := id
			if len(p) > length {
				p = p[:length]
			}
			if seen[p] {
				distinct = false
				break
			}
			seen[p] = true
		}
		if distinct {
			return length
		}
	}
	return maxLen
}

func shortenAll(ids []string) func(string) string {
	length := UniquePrefix(ids, 8)
	return func(id string) string {
		if len(id) > length {
			return id[:length]
		}
		return id
	}
}

// FormatResults renders ranked search results as markdown, the form the
// assistant consumes when the search command runs inside a skill.
func FormatResults(results []ScoredTurn) string {
	if len(results) == 0 {
		return "No results found."
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.SessionID
	}
	shorten := shortenAll(ids)

	var b strings.Builder
	for _, r := range results {
		header := fmt.Sprintf("## %s (%s", titleOrUntitled(r.Title, r.UserMessage), FormatAge(r.AgeDays))
		if ws := WorkspaceBase(r.Workspace); ws != "" {
			header += ", " + ws
		}
		header += fmt.Sprintf(", %s)", r.Source)
		b.WriteString(header + "\n")

		if r.Tags != "" {
			fmt.Fprintf(&b, "Tags: %s\n", r.Tags)
		}
		if r.Description != "" {
			b.WriteString(r.Description + "\n")
		} else if r.Status != StatusDone && r.UserMessage != "" {
			// Degraded result: no summary, show the raw prompt.
			fmt.Fprintf(&b, "%s\n", clampString(r.UserMessage, 200))
		}
		fmt.Fprintf(&b, "Session: %s\n\n", shorten(r.SessionID))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRecent renders recent turns newest first.
func FormatRecent(turns []Turn, now time.Time) string {
	if len(turns) == 0 {
		return "No turns found."
	}

	ids := make([]string, len(turns))
	for i, t := range turns {
		ids[i] = t.SessionID
	}
	shorten := shortenAll(ids)

	var b strings.Builder
	for _, t := range turns {
		age := FormatAge(now.Sub(t.Timestamp).Hours() / 24)
		line := fmt.Sprintf("- **%s** (%s, %s)", titleOrUntitled(t.Title, t.UserMessage), age, t.Source)
		if ws := WorkspaceBase(t.Workspace); ws != "" {
			line += fmt.Sprintf(" [%s]", ws)
		}
		line += fmt.Sprintf(" `%s`", shorten(t.SessionID))
		b.WriteString(line + "\n")
		if t.Description != "" {
			fmt.Fprintf(&b, "  %s\n", t.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSessionDetail renders a session with all its turns.
func FormatSessionDetail(sess *Session, turns []Turn) string {
	var b strings.Builder

	title := sess.Title
	if title == "" {
		title = "Untitled session"
	}
	fmt.Fprintf(&b, "# %s\n", title)
	fmt.Fprintf(&b, "Source: %s\n", sess.Source)
	workspace := sess.Workspace
	if workspace == "" {
		workspace = "unknown"
	}
	fmt.Fprintf(&b, "Workspace: %s\n", workspace)
	fmt.Fprintf(&b, "Started: %s\n", sess.StartedAt.Format("2006-01-02 15:04"))
	if sess.EndedAt != nil {
		fmt.Fprintf(&b, "Ended: %s\n", sess.EndedAt.Format("2006-01-02 15:04"))
	}
	if sess.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", sess.Summary)
	}
	fmt.Fprintf(&b, "\n## Turns (%d)\n", sess.TurnCount)

	for _, t := range turns {
		fmt.Fprintf(&b, "\n### %s (%s)\n",
			titleOrUntitled(t.Title, t.UserMessage), t.Timestamp.Format("2006-01-02 15:04"))
		if t.Status != StatusDone {
			fmt.Fprintf(&b, "Status: %s\n", t.Status)
		}
		if t.Tags != "" {
			fmt.Fprintf(&b, "Tags: %s\n", t.Tags)
		}
		if t.Description != "" {
			b.WriteString(t.Description + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatStats renders the usage report.
func FormatStats(stats *StoreStats) string {
	last := stats.LastIndexed
	if last == "" {
		last = "never"
	}
	hitRate := "-"
	if stats.TotalSearches > 0 {
		hitRate = fmt.Sprintf("%.0f%%", float64(stats.SearchesWithHits)/float64(stats.TotalSearches)*100)
	}

	lines := []string{
		"# Rekal Stats",
		"",
		fmt.Sprintf("Sessions: %d (%d claude, %d codex)",
			stats.TotalSessions, stats.ClaudeSessions, stats.CodexSessions),
		fmt.Sprintf("Turns indexed: %d", stats.TotalTurns),
	}
	for _, status := range []TurnStatus{StatusDone, StatusPending, StatusFailed, StatusSkipped} {
		if n := stats.TurnsByStatus[status]; n > 0 {
			lines = append(lines, fmt.Sprintf("  %s: %d", status, n))
		}
	}
	lines = append(lines,
		fmt.Sprintf("Last indexed: %s", last),
		"",
		fmt.Sprintf("Searches: %d", stats.TotalSearches),
		fmt.Sprintf("Hit rate: %s (%d/%d returned results)",
			hitRate, stats.SearchesWithHits, stats.TotalSearches),
		fmt.Sprintf("Avg results per search: %.1f", stats.AvgResults),
	)
	return strings.Join(lines, "\n")
}

func titleOrUntitled(title, fallback string) string {
	if title != "" {
		return title
	}
	if fallback != "" {
		return clampString(strings.SplitN(fallback, "\n", 2)[0], 60)
	}
	return "Untitled"
}
