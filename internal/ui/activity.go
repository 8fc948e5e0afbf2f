package ui

import (
	"fmt"
	"strings"

	"github.com/guidedesk/guidedesk/internal/events"
)

// updateActivityViewport rebuilds the sync activity log, keeping the view
// pinned to the newest entry when it was already at the bottom.
func (m *Model) updateActivityViewport() {
	if m.activityViewport.Width == 0 {
		return
	}
	atBottom := m.activityViewport.AtBottom()
	m.activityViewport.SetContent(m.formatActivity())
	if atBottom {
		m.activityViewport.GotoBottom()
	}
}

func (m Model) formatActivity() string {
	styles := m.theme.Styles()
	if len(m.snapshot.Activity) == 0 {
		return styles.MutedText.Render("No sync activity yet")
	}
	lines := make([]string, 0, len(m.snapshot.Activity))
	for _, e := range m.snapshot.Activity {
		style := styles.Text
		switch e.Kind {
		case events.SyncCompleted:
			style = styles.SuccessText
		case events.SyncFailed:
			style = styles.DangerText
		case events.SyncSkipped:
			style = styles.FaintText
		case events.Notification:
			style = styles.InfoText
		}
		lines = append(lines,
			styles.MutedText.Render(e.At.Local().Format("15:04:05"))+" "+style.Render(e.String()))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderActivity() string {
	title := fmt.Sprintf("Sync activity (%d)", len(m.snapshot.Activity))
	if st := m.snapshot.Sync; st.HasLast {
		title += " · last " + string(st.Last.Kind)
	}
	return m.renderTitledBox(title, m.activityViewport.View(), m.width, m.contentHeight(), true)
}
