package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/guidedesk/guidedesk/internal/syncer"
	"github.com/guidedesk/guidedesk/internal/tours"
)

// renderHeader renders the status line: connection, operator, sync state
// and any pending notification.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	sep := bg.Spaces(2)

	parts := []string{bg.Render("guidedesk", styles.Logo)}

	switch {
	case !m.snapshot.HasData && m.snapshot.LastError != nil:
		parts = append(parts,
			styles.Badge(badgeOffline).Render("OFFLINE"),
			bg.Render("Retrying...", styles.WarningText.Bold(true)))
	case !m.snapshot.HasData:
		parts = append(parts, bg.Render("Connecting to "+truncateMiddle(m.apiURL, 40), styles.MutedText))
	case m.snapshot.IsOffline() || m.snapshot.Source == tours.SourceStale:
		parts = append(parts, styles.Badge(badgeOffline).Render("OFFLINE"))
		if !m.snapshot.LastUpdated.IsZero() {
			parts = append(parts, bg.Render("cached data", styles.WarningText))
		}
	default:
		parts = append(parts, bg.Render("online", styles.SuccessText))
	}

	if m.session.LoggedIn() {
		who := m.session.Name
		if who == "" {
			who = "signed in"
		}
		parts = append(parts, bg.Render(who, styles.Text)+bg.Space()+bg.Render("("+m.session.Role+")", styles.FaintText))
	}

	if m.snapshot.Sync.State == syncer.InProgress {
		parts = append(parts, styles.Badge(badgeSyncing).Render("SYNCING"))
	}
	if m.session.IsAdmin() {
		parts = append(parts, bg.Render(lastSyncLabel(m.snapshot.Sync.LastSync, m.now()), styles.MutedText))
	}

	if toast := m.snapshot.Toast; toast != "" {
		parts = append(parts, bg.Render(truncate(toast, max(m.width/3, 12)), styles.InfoText.Bold(true)))
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Foreground(lipgloss.Color(m.theme.Text)).
		Width(m.width).
		MaxHeight(1).
		Render(strings.Join(parts, sep))
}

// lastSyncLabel describes the last successful booking sync.
func lastSyncLabel(last, now time.Time) string {
	if last.IsZero() {
		return "Never synced"
	}
	d := now.Sub(last)
	if d < time.Minute {
		return "Last sync just now"
	}
	return "Last sync " + humanDuration(d) + " ago"
}

// humanDuration renders d with the largest sensible unit.
func humanDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		h := int(d.Hours())
		if mins := int(d.Minutes()) % 60; mins != 0 && h < 10 {
			return fmt.Sprintf("%dh %dm", h, mins)
		}
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// renderCommandBar renders the key hints for the current view, or the
// latest status message when there is one.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	if m.confirm != nil {
		prompt := m.confirm.prompt + " y to confirm, any other key to keep it"
		return styles.Header.Width(m.width).Render(bg.Render(prompt, styles.DangerText.Bold(true)))
	}
	if m.filtering {
		return styles.Header.Width(m.width).Render(m.filterInput.View())
	}

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewTours:
		commands = []cmd{
			{"j/k", "Navigate"},
			{"p", "Paid"},
			{"c", "Cancel"},
			{"D", "Delete"},
			{"x", ternary(m.showCancelled, "Hide cancelled", "Show cancelled")},
			{"/", "Filter"},
		}
	case ViewGuides:
		commands = []cmd{
			{"j/k", "Navigate"},
			{"D", "Delete"},
		}
	case ViewActivity:
		commands = []cmd{
			{"j/k", "Scroll"},
		}
	case ViewLogs:
		commands = []cmd{
			{"Space", ternary(m.logState.follow, "Pause", "Follow")},
			{"L", "Level " + m.logState.minLevel.CapitalString()},
		}
	}
	if m.session.IsAdmin() {
		commands = append(commands, cmd{"s", "Sync"})
	}
	commands = append(commands, cmd{"r", "Reload"}, cmd{"1-4", "Views"}, cmd{"?", "More"})

	colon := bg.Render(":", styles.FaintText)
	sep := bg.Spaces(2)

	segments := make([]string, 0, len(commands)+2)
	if m.flash != "" {
		style := styles.SuccessText
		if m.flashErr {
			style = styles.DangerText
		}
		segments = append(segments, bg.Render(truncate(m.flash, max(m.width/2, 20)), style.Bold(true)))
	}
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}
	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).MaxHeight(1).Render(strings.Join(segments, sep))
}

// renderTitledBox renders a bordered box with the title embedded in the top
// border.
func (m Model) renderTitledBox(title, content string, width, height int, focused bool) string {
	var borderColorStr, bgColorStr string
	if focused {
		borderColorStr = m.theme.BorderFocus
		bgColorStr = m.theme.FocusBg
	} else {
		borderColorStr = m.theme.Border
		bgColorStr = m.theme.SurfaceAlt
	}
	bg := NewBgStyle(bgColorStr)
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(borderColorStr))
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.Text))

	innerWidth := max(width-2, 0)
	title = truncate(title, max(innerWidth-4, 0))
	titleLen := lipgloss.Width(title)
	leftPad := max((innerWidth-titleLen-2)/2, 0)
	rightPad := max(innerWidth-titleLen-2-leftPad, 0)

	topBorder := bg.Render("┌", borderStyle) +
		bg.Render(strings.Repeat("─", leftPad), borderStyle) +
		bg.Render(" "+title+" ", titleStyle) +
		bg.Render(strings.Repeat("─", rightPad), borderStyle) +
		bg.Render("┐", borderStyle)

	bottomBorder := bg.Render("└", borderStyle) +
		bg.Render(strings.Repeat("─", innerWidth), borderStyle) +
		bg.Render("┘", borderStyle)

	contentStyle := lipgloss.NewStyle().Width(innerWidth).MaxWidth(innerWidth).MaxHeight(1).
		Background(lipgloss.Color(bgColorStr))

	contentLines := strings.Split(content, "\n")
	boxHeight := max(height-2, 0)

	lines := make([]string, 0, boxHeight)
	for i := 0; i < boxHeight; i++ {
		var line string
		if i < len(contentLines) {
			line = contentLines[i]
		}
		lines = append(lines,
			bg.Render("│", borderStyle)+contentStyle.Render(line)+bg.Render("│", borderStyle))
	}

	return topBorder + "\n" + strings.Join(lines, "\n") + "\n" + bottomBorder
}

// truncateMiddle keeps the start and the end of s.
func truncateMiddle(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	if limit <= 5 {
		return s[:limit]
	}
	endLen := (limit - 3) * 2 / 3
	startLen := limit - 3 - endLen
	return s[:startLen] + "..." + s[len(s)-endLen:]
}

func ternary(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func textinputBlink() tea.Cmd {
	return textinput.Blink
}
