package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap/zapcore"

	"github.com/guidedesk/guidedesk/internal/logtail"
)

// logTailLines is how many lines of the log file the logs view reads.
const logTailLines = 500

var logLevels = []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}

type logState struct {
	follow   bool
	minLevel zapcore.Level
	entries  []logtail.Entry
	err      error
}

func newLogState() logState {
	return logState{follow: true, minLevel: zapcore.InfoLevel}
}

type logsMsg struct {
	entries []logtail.Entry
	err     error
}

// refreshLogs reads the tail of the log file in the background.
func (m Model) refreshLogs() tea.Cmd {
	path := m.logPath
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		entries, err := logtail.Tail(path, logTailLines)
		return logsMsg{entries: entries, err: err}
	}
}

func (m *Model) handleLogs(msg logsMsg) {
	m.logState.err = msg.err
	if msg.err == nil {
		m.logState.entries = msg.entries
	}
	m.updateLogViewport()
}

func (m *Model) updateLogViewport() {
	if m.logViewport.Width == 0 {
		return
	}
	m.logViewport.SetContent(m.formatLogs())
	if m.logState.follow {
		m.logViewport.GotoBottom()
	}
}

func (m Model) formatLogs() string {
	styles := m.theme.Styles()
	switch {
	case m.logPath == "":
		return styles.MutedText.Render("Logging to the console; no log file to show")
	case m.logState.err != nil:
		return styles.DangerText.Render("read logs: " + m.logState.err.Error())
	}

	entries := logtail.Filter(m.logState.entries, m.logState.minLevel)
	if len(entries) == 0 {
		return styles.MutedText.Render("No log entries at " + m.logState.minLevel.String() + " or above")
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Parsed {
			lines = append(lines, styles.FaintText.Render(e.Raw))
			continue
		}
		levelStyle := styles.InfoText
		switch {
		case e.Level >= zapcore.ErrorLevel:
			levelStyle = styles.DangerText
		case e.Level == zapcore.WarnLevel:
			levelStyle = styles.WarningText
		case e.Level == zapcore.DebugLevel:
			levelStyle = styles.FaintText
		}
		line := styles.MutedText.Render(e.Time.Local().Format("15:04:05")) + " " +
			levelStyle.Render(fmt.Sprintf("%-5s", e.Level.CapitalString())) + " " +
			styles.Text.Render(e.Message)
		if e.Fields != "" {
			line += " " + styles.FaintText.Render(e.Fields)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.logState.follow = !m.logState.follow
		if m.logState.follow {
			m.logViewport.GotoBottom()
			return m, m.refreshLogs()
		}
		return m, nil
	case key.Matches(msg, m.keys.CycleLevel):
		m.logState.minLevel = nextLevel(m.logState.minLevel)
		m.updateLogViewport()
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.logState.follow = false
		m.logViewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.logViewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	if !m.logViewport.AtBottom() {
		m.logState.follow = false
	}
	return m, cmd
}

func nextLevel(current zapcore.Level) zapcore.Level {
	for i, l := range logLevels {
		if l == current {
			return logLevels[(i+1)%len(logLevels)]
		}
	}
	return zapcore.InfoLevel
}

func (m Model) renderLogs() string {
	title := "Logs"
	if m.logPath != "" {
		title = "Logs " + truncateMiddle(m.logPath, max(m.width/2, 20))
	}
	if !m.logState.follow {
		title += " · paused"
	}
	return m.renderTitledBox(title, m.logViewport.View(), m.width, m.contentHeight(), true)
}
