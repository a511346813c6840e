package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/jirawatch/internal/theme"
)

// frameLines is the vertical space the header and hint bar take away
// from the content area, one line each.
const frameLines = 2

// Layout holds the terminal dimensions shared by every view.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout for the given terminal size.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the rows left for the active view once the
// header and hint bar are accounted for.
func (l Layout) ContentHeight() int {
	return l.Height - frameLines
}

// RenderHeader draws the title bar. The right edge carries the live
// tracking status so it stays visible from every view.
func (l Layout) RenderHeader(title, tracking string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.HeaderStyle.Align(lipgloss.Right).Render(tracking)
	return spreadAcross(theme.HeaderStyle, left, right, l.Width)
}

// RenderStatusBar draws the bottom bar with the key hints for the
// active view.
func (l Layout) RenderStatusBar(hints string) string {
	return spreadAcross(theme.StatusBarStyle, theme.StatusBarStyle.Render(hints), "", l.Width)
}

// RenderWithFrame stacks the header, the content area, and the hint
// bar into the full terminal view.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// spreadAcross pins left and right to the terminal edges, filling the
// gap with the bar style's background so the bar spans the full width.
func spreadAcross(bar lipgloss.Style, left, right string, width int) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	filler := bar.Render(lipgloss.NewStyle().
		Width(gap).
		Background(bar.GetBackground()).
		Render(""))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}
