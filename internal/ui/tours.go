package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/guidedesk/guidedesk/internal/api"
)

// visibleTours returns the tours shown in the list: filtered by the
// cancelled toggle and the filter text, sorted by start time.
func (m Model) visibleTours() []api.Tour {
	query := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))
	items := make([]api.Tour, 0, len(m.snapshot.Tours))
	for _, t := range m.snapshot.Tours {
		if bool(t.Cancelled) && !m.showCancelled {
			continue
		}
		if query != "" && !tourMatches(t, query) {
			continue
		}
		items = append(items, t)
	}
	sortTours(items)
	return items
}

func tourMatches(t api.Tour, query string) bool {
	for _, field := range []string{t.Title, t.GuideName, t.CustomerName, t.Date} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// sortTours orders tours by start time; tours without a parseable start go
// last, ties by id.
func sortTours(items []api.Tour) {
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := items[i].Start(), items[j].Start()
		if si.IsZero() != sj.IsZero() {
			return !si.IsZero()
		}
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return items[i].ID < items[j].ID
	})
}

// selectedTourItem returns the tour under the cursor, or nil.
func (m Model) selectedTourItem() *api.Tour {
	items := m.visibleTours()
	if m.selectedTour < 0 || m.selectedTour >= len(items) {
		return nil
	}
	t := items[m.selectedTour]
	return &t
}

// clampSelection keeps cursors inside the current lists.
func (m *Model) clampSelection() {
	m.selectedTour = clampIndex(m.selectedTour, len(m.visibleTours()))
	m.selectedGuide = clampIndex(m.selectedGuide, len(m.snapshot.Guides))
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// moveCursor applies navigation keys to a cursor over n rows.
func (m Model) moveCursor(msg tea.KeyMsg, cursor, n int) int {
	half := max(m.contentHeight()/2, 1)
	switch {
	case key.Matches(msg, m.keys.Up):
		cursor--
	case key.Matches(msg, m.keys.Down):
		cursor++
	case key.Matches(msg, m.keys.Top):
		cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		cursor = n - 1
	case key.Matches(msg, m.keys.HalfPageUp):
		cursor -= half
	case key.Matches(msg, m.keys.HalfPageDown):
		cursor += half
	}
	return clampIndex(cursor, n)
}

// handleToursKey processes keyboard input for the tours view.
func (m Model) handleToursKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		m.filterInput.Focus()
		return m, textinputBlink()
	case key.Matches(msg, m.keys.ShowCancelled):
		m.showCancelled = !m.showCancelled
		m.clampSelection()
		m.savePrefs()
		return m, nil
	}

	tour := m.selectedTourItem()
	switch {
	case key.Matches(msg, m.keys.TogglePaid):
		if tour == nil || !m.canMutate(tour) {
			return m, nil
		}
		return m, m.setPaidCmd(*tour, !bool(tour.Paid))
	case key.Matches(msg, m.keys.ToggleCancelled):
		if tour == nil || !m.canMutate(tour) {
			return m, nil
		}
		return m, m.setCancelledCmd(*tour, !bool(tour.Cancelled))
	case key.Matches(msg, m.keys.Delete):
		if tour == nil || !m.canMutate(tour) {
			return m, nil
		}
		svc, ctx := m.tours, m.ctx
		id, title := tour.ID, tour.Title
		m.confirm = &confirmation{
			prompt: fmt.Sprintf("Delete tour %q?", title),
			run: func() tea.Msg {
				err := svc.DeleteTour(ctx, id)
				return mutationMsg{op: fmt.Sprintf("deleted %q", title), verb: "delete", err: err}
			},
		}
		return m, nil
	}

	m.selectedTour = m.moveCursor(msg, m.selectedTour, len(m.visibleTours()))
	return m, nil
}

// canMutate rejects edits to tours created offline; they have no server id
// until the next successful reload.
func (m *Model) canMutate(t *api.Tour) bool {
	if m.tours == nil {
		return false
	}
	if t.ID <= 0 {
		m.setFlash("tour is not saved on the server yet", true)
		return false
	}
	return true
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.filtering = false
		m.filterInput.Blur()
		return m, nil
	case tea.KeyEsc:
		m.filtering = false
		m.filterInput.Blur()
		m.filterInput.SetValue("")
		m.clampSelection()
		return m, nil
	}
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	m.selectedTour = 0
	return m, cmd
}

// confirmation is a destructive action waiting for the operator.
type confirmation struct {
	prompt string
	run    tea.Cmd
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pending := m.confirm
	m.confirm = nil
	if !key.Matches(msg, m.keys.Confirm) {
		m.setFlash("delete cancelled", false)
		return m, nil
	}
	return m, pending.run
}

func (m Model) setPaidCmd(t api.Tour, paid bool) tea.Cmd {
	svc, ctx := m.tours, m.ctx
	return func() tea.Msg {
		_, err := svc.UpdateTourPaidStatus(ctx, t.ID, paid)
		label := "unpaid"
		if paid {
			label = "paid"
		}
		return mutationMsg{op: fmt.Sprintf("marked %q %s", t.Title, label), verb: "update paid status", err: err}
	}
}

func (m Model) setCancelledCmd(t api.Tour, cancelled bool) tea.Cmd {
	svc, ctx := m.tours, m.ctx
	return func() tea.Msg {
		_, err := svc.UpdateTourCancelledStatus(ctx, t.ID, cancelled)
		op := fmt.Sprintf("restored %q", t.Title)
		if cancelled {
			op = fmt.Sprintf("cancelled %q", t.Title)
		}
		return mutationMsg{op: op, verb: "update cancelled status", err: err}
	}
}

// renderTours renders the tours view with split layout (list + detail).
func (m Model) renderTours() string {
	styles := m.theme.Styles()
	height := m.contentHeight()

	if !m.snapshot.HasData {
		msg := styles.MutedText.Render("Loading tours...")
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, msg)
	}

	listWidth := m.width * 55 / 100
	if m.width >= 160 {
		listWidth = m.width * 45 / 100
	}
	detailWidth := m.width - listWidth

	items := m.visibleTours()
	title := fmt.Sprintf("Tours (%d)", len(items))
	if q := m.filterInput.Value(); q != "" || m.filtering {
		title = fmt.Sprintf("Tours (%d) /%s", len(items), q)
	}
	if !m.showCancelled {
		title += " · cancelled hidden"
	}

	listBg := m.theme.FocusBg
	listContent := m.renderTourRows(items, listWidth-2, height-2, listBg)
	listPane := m.renderTitledBox(title, listContent, listWidth, height, true)

	detailBg := m.theme.SurfaceAlt
	var detail string
	if t := m.selectedTourItem(); t != nil {
		detail = m.renderTourDetail(*t, detailWidth-4, detailBg)
	} else {
		detail = lipgloss.NewStyle().
			Foreground(lipgloss.Color(m.theme.Muted)).
			Background(lipgloss.Color(detailBg)).
			Render(ternary(len(m.snapshot.Tours) == 0, "No tours scheduled", "No tours match"))
	}
	detailPane := m.renderTitledBox("Details", detail, detailWidth, height, false)

	return lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)
}

// renderTourRows renders the visible window of tour rows around the cursor.
func (m Model) renderTourRows(items []api.Tour, width, rows int, bgColor string) string {
	if len(items) == 0 || rows <= 0 {
		return ""
	}
	start := 0
	if m.selectedTour >= rows {
		start = m.selectedTour - rows + 1
	}
	end := min(start+rows, len(items))

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		rowBg := bgColor
		if i == m.selectedTour {
			rowBg = m.theme.SelectionBg
		}
		content := m.formatTourRow(items[i], width, rowBg, i == m.selectedTour)
		lines = append(lines, NewBgStyle(rowBg).FillLine(content, width))
	}
	return strings.Join(lines, "\n")
}

// formatTourRow formats one row: "DATE TIME  Title  Guide  BADGE".
func (m Model) formatTourRow(t api.Tour, width int, bgColor string, selected bool) string {
	bg := NewBgStyle(bgColor)
	styles := m.theme.Styles()

	textStyle := styles.Text
	mutedStyle := styles.MutedText
	if selected {
		textStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.SelectionText))
		mutedStyle = textStyle
	}

	when := strings.TrimSpace(t.Date + " " + t.Time)
	badge, badgeName := tourBadge(t)
	guideWidth := 14
	titleWidth := width - 17 - guideWidth - len(badge) - 4
	if titleWidth < 8 {
		guideWidth = 0
		titleWidth = max(width-17-len(badge)-3, 4)
	}

	parts := []string{
		bg.Render(fit(when, 16), mutedStyle),
		bg.Render(fit(t.Title, titleWidth), textStyle),
	}
	if guideWidth > 0 {
		guide := t.GuideName
		if guide == "" {
			guide = "-"
		}
		parts = append(parts, bg.Render(fit(guide, guideWidth), mutedStyle))
	}
	parts = append(parts, styles.Badge(badgeName).Render(badge))
	return strings.Join(parts, bg.Space())
}

// tourBadge picks the single most important state for the list.
func tourBadge(t api.Tour) (label, name string) {
	switch {
	case t.ID <= 0:
		return "LOCAL", badgeLocal
	case bool(t.Cancelled):
		return "CANCELLED", badgeCancelled
	case bool(t.Paid):
		return "PAID", badgePaid
	default:
		return "UNPAID", badgeUnpaid
	}
}

// renderTourDetail renders the detail pane for t.
func (m Model) renderTourDetail(t api.Tour, width int, bgColor string) string {
	styles := m.theme.Styles().WithBackground(bgColor)
	bg := NewBgStyle(bgColor)

	field := func(label, value string) string {
		if strings.TrimSpace(value) == "" {
			value = "-"
		}
		return bg.Render(padRight(label, 14), styles.MutedText) + bg.Render(truncate(value, width-14), styles.Text)
	}

	lines := []string{
		bg.Render(truncate(t.Title, width), styles.Text.Bold(true)),
		"",
		field("When", strings.TrimSpace(t.Date+" "+t.Time)),
		field("Starts", relativeStart(t.Start(), m.now())),
		field("Duration", t.Duration),
		field("Guide", t.GuideName),
		field("Customer", t.CustomerName),
	}
	if t.Participants > 0 {
		lines = append(lines, field("Participants", fmt.Sprintf("%d", t.Participants)))
	}
	lines = append(lines,
		field("Paid", yesNo(bool(t.Paid))),
		field("Cancelled", yesNo(bool(t.Cancelled))),
	)
	if t.ExternalID != "" {
		lines = append(lines, field("Bokun ref", t.ExternalID))
	}
	if t.ID > 0 {
		lines = append(lines, field("ID", fmt.Sprintf("#%d", t.ID)))
	} else {
		lines = append(lines, bg.Render("Created offline, waiting for the server", styles.WarningText))
	}
	if desc := strings.TrimSpace(t.Description); desc != "" {
		wrapped := lipgloss.NewStyle().Width(width).Foreground(lipgloss.Color(m.theme.Text)).
			Background(lipgloss.Color(bgColor)).Render(desc)
		lines = append(lines, "", wrapped)
	}
	return strings.Join(lines, "\n")
}

func yesNo(v bool) string {
	return ternary(v, "yes", "no")
}

// relativeStart describes how far away start is from now.
func relativeStart(start, now time.Time) string {
	if start.IsZero() {
		return ""
	}
	d := start.Sub(now)
	switch {
	case d < -time.Minute:
		return humanDuration(-d) + " ago"
	case d < time.Minute:
		return "now"
	default:
		return "in " + humanDuration(d)
	}
}
