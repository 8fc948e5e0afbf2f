package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/guidedesk/guidedesk/internal/api"
)

func (m Model) handleGuidesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Delete) {
		g := m.selectedGuideItem()
		if g == nil || m.tours == nil {
			return m, nil
		}
		if g.ID <= 0 {
			m.setFlash("guide is not saved on the server yet", true)
			return m, nil
		}
		svc, ctx := m.tours, m.ctx
		id, name := g.ID, g.Name
		m.confirm = &confirmation{
			prompt: fmt.Sprintf("Delete guide %q?", name),
			run: func() tea.Msg {
				err := svc.DeleteGuide(ctx, id)
				return mutationMsg{op: fmt.Sprintf("deleted guide %q", name), verb: "delete guide", err: err}
			},
		}
		return m, nil
	}
	m.selectedGuide = m.moveCursor(msg, m.selectedGuide, len(m.snapshot.Guides))
	return m, nil
}

func (m Model) selectedGuideItem() *api.Guide {
	if m.selectedGuide < 0 || m.selectedGuide >= len(m.snapshot.Guides) {
		return nil
	}
	g := m.snapshot.Guides[m.selectedGuide]
	return &g
}

// renderGuides renders the guide roster with the selected guide's profile
// and upcoming tours.
func (m Model) renderGuides() string {
	height := m.contentHeight()
	if !m.snapshot.HasData {
		msg := m.theme.Styles().MutedText.Render("Loading guides...")
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, msg)
	}

	listWidth := max(m.width*40/100, 24)
	detailWidth := m.width - listWidth

	rows := height - 2
	start := 0
	if m.selectedGuide >= rows {
		start = m.selectedGuide - rows + 1
	}
	end := min(start+rows, len(m.snapshot.Guides))
	lines := make([]string, 0, max(end-start, 0))
	for i := start; i < end; i++ {
		g := m.snapshot.Guides[i]
		rowBg := m.theme.FocusBg
		textStyle := m.theme.Styles().Text
		if i == m.selectedGuide {
			rowBg = m.theme.SelectionBg
			textStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.SelectionText))
		}
		bg := NewBgStyle(rowBg)
		row := bg.Render(fit(g.Name, listWidth-18), textStyle) + bg.Space() +
			bg.Render(fit(g.Phone, 14), m.theme.Styles().MutedText)
		lines = append(lines, bg.FillLine(row, listWidth-2))
	}
	title := fmt.Sprintf("Guides (%d)", len(m.snapshot.Guides))
	listPane := m.renderTitledBox(title, strings.Join(lines, "\n"), listWidth, height, true)

	var detail string
	if g := m.selectedGuideItem(); g != nil {
		detail = m.renderGuideDetail(*g, detailWidth-4, m.theme.SurfaceAlt)
	} else {
		detail = m.theme.Styles().MutedText.Background(lipgloss.Color(m.theme.SurfaceAlt)).Render("No guides yet")
	}
	detailPane := m.renderTitledBox("Profile", detail, detailWidth, height, false)

	return lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)
}

func (m Model) renderGuideDetail(g api.Guide, width int, bgColor string) string {
	styles := m.theme.Styles().WithBackground(bgColor)
	bg := NewBgStyle(bgColor)
	field := func(label, value string) string {
		if strings.TrimSpace(value) == "" {
			value = "-"
		}
		return bg.Render(padRight(label, 12), styles.MutedText) + bg.Render(truncate(value, width-12), styles.Text)
	}

	lines := []string{
		bg.Render(truncate(g.Name, width), styles.Text.Bold(true)),
		"",
		field("Phone", g.Phone),
		field("Email", g.Email),
		field("Languages", g.Languages.String()),
	}
	if g.ID <= 0 {
		lines = append(lines, bg.Render("Created offline, waiting for the server", styles.WarningText))
	}
	if bio := strings.TrimSpace(g.Bio); bio != "" {
		lines = append(lines, "", lipgloss.NewStyle().Width(width).
			Foreground(lipgloss.Color(m.theme.Text)).Background(lipgloss.Color(bgColor)).Render(bio))
	}

	upcoming := m.guideTours(g)
	lines = append(lines, "", bg.Render(fmt.Sprintf("Tours (%d)", len(upcoming)), styles.AccentText.Bold(true)))
	for _, t := range upcoming {
		badge, name := tourBadge(t)
		lines = append(lines,
			bg.Render(fit(strings.TrimSpace(t.Date+" "+t.Time), 17), styles.MutedText)+
				bg.Render(fit(t.Title, max(width-17-len(badge)-3, 4)), styles.Text)+bg.Space()+
				m.theme.Styles().Badge(name).Render(badge))
	}
	return strings.Join(lines, "\n")
}

// guideTours returns the guide's tours in start order.
func (m Model) guideTours(g api.Guide) []api.Tour {
	var out []api.Tour
	for _, t := range m.snapshot.Tours {
		if t.GuideID == g.ID || (t.GuideID == 0 && t.GuideName != "" && t.GuideName == g.Name) {
			out = append(out, t)
		}
	}
	sortTours(out)
	return out
}
