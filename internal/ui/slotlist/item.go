package slotlist

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/jirawatch/internal/model"
	"github.com/nhle/jirawatch/internal/theme"
)

// Row is one timer slot prepared for display. Seconds already includes
// the live running interval.
type Row struct {
	ID         string
	IssueKey   string
	Summary    string
	Seconds    int64
	Running    bool
	AutoPaused bool
}

// SlotItem wraps a Row so it can be used in a bubbles/list.
type SlotItem struct {
	Row Row
}

// FilterValue returns the string used for fuzzy filtering.
func (i SlotItem) FilterValue() string {
	return i.Row.IssueKey + " " + i.Row.Summary
}

// ItemDelegate implements list.ItemDelegate for rendering slot rows.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single slot line: state marker, clock, issue key, summary.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	si, ok := item.(SlotItem)
	if !ok {
		return
	}
	row := si.Row

	var marker string
	switch {
	case row.Running:
		marker = theme.RunningStyle.Render("▶")
	case row.Seconds > 0:
		marker = theme.PausedStyle.Render("⏸")
	default:
		marker = lipgloss.NewStyle().Foreground(theme.ColorGray).Render("·")
	}

	clock := theme.TimeStyle.Render(model.FormatClock(row.Seconds))

	issue := row.IssueKey
	if issue == "" {
		issue = lipgloss.NewStyle().Foreground(theme.ColorGray).Render("(no issue)")
	} else {
		issue = lipgloss.NewStyle().Foreground(theme.ColorBlue).Bold(true).Render(issue)
	}

	pausedNote := ""
	if row.AutoPaused {
		pausedNote = theme.PausedStyle.Render(" auto-paused")
	}

	line := fmt.Sprintf("%s %s  %s  %s%s", marker, clock, issue, row.Summary, pausedNote)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}
