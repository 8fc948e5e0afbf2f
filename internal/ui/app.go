package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/prefs"
	"github.com/guidedesk/guidedesk/internal/session"
	"github.com/guidedesk/guidedesk/internal/state"
	"github.com/guidedesk/guidedesk/internal/syncer"
)

// View represents the current active view.
type View int

const (
	ViewTours View = iota
	ViewGuides
	ViewActivity
	ViewLogs
)

var viewOrder = []View{ViewTours, ViewGuides, ViewActivity, ViewLogs}

var viewNames = map[View]string{
	ViewTours:    "tours",
	ViewGuides:   "guides",
	ViewActivity: "activity",
	ViewLogs:     "logs",
}

func viewByName(name string) View {
	for v, n := range viewNames {
		if n == name {
			return v
		}
	}
	return ViewTours
}

// toastTTL is how long a sync notification stays in the header.
const toastTTL = 8 * time.Second

// flashTTL is how long a status line message stays visible.
const flashTTL = 6 * time.Second

// TourService is the part of the tours service the UI mutates through.
type TourService interface {
	UpdateTourPaidStatus(ctx context.Context, id int64, paid bool) (api.Tour, error)
	UpdateTourCancelledStatus(ctx context.Context, id int64, cancelled bool) (api.Tour, error)
	DeleteTour(ctx context.Context, id int64) error
	DeleteGuide(ctx context.Context, id int64) error
}

// Refresher reloads the snapshot in the background.
type Refresher interface {
	Refresh(force bool)
}

// Triggers are the sync trigger sources the terminal drives. Any of them
// may be nil.
type Triggers struct {
	Focus      *syncer.ChannelSource
	Visibility *syncer.VisibilitySource
	Manual     *syncer.ChannelSource
}

// Options configures the UI.
type Options struct {
	Context   context.Context
	Store     *state.Store
	Tours     TourService
	Refresher Refresher
	Session   session.Session
	Triggers  Triggers
	APIURL    string
	LogPath   string
	Prefs     prefs.Prefs
	PrefsPath string
	PollTick  time.Duration
	Log       *zap.SugaredLogger
	Now       func() time.Time
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	store     *state.Store
	tours     TourService
	refresher Refresher
	session   session.Session
	triggers  Triggers
	apiURL    string
	logPath   string
	prefs     prefs.Prefs
	prefsPath string
	pollTick  time.Duration
	log       *zap.SugaredLogger
	now       func() time.Time

	// UI state
	keys        keyMap
	help        help.Model
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	// Data state
	snapshot state.Snapshot

	// Tours state
	selectedTour  int
	showCancelled bool
	filterInput   textinput.Model
	filtering     bool

	// Guides state
	selectedGuide int

	// Activity and logs
	activityViewport viewport.Model
	logViewport      viewport.Model
	logState         logState

	// Pending destructive action awaiting y/enter
	confirm *confirmation

	// Status line
	flash    string
	flashErr bool
	flashAt  time.Time
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	userPrefs := opts.Prefs
	if userPrefs.Theme == "" {
		userPrefs = prefs.Defaults()
	}

	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "title, guide or customer"
	filter.CharLimit = 64

	return Model{
		ctx:           ctx,
		store:         opts.Store,
		tours:         opts.Tours,
		refresher:     opts.Refresher,
		session:       opts.Session,
		triggers:      opts.Triggers,
		apiURL:        opts.APIURL,
		logPath:       opts.LogPath,
		prefs:         userPrefs,
		prefsPath:     prefsPath,
		pollTick:      pollTick,
		log:           log,
		now:           now,
		keys:          DefaultKeyMap(),
		help:          help.New(),
		theme:         GetTheme(userPrefs.Theme),
		currentView:   viewByName(userPrefs.LastView),
		showCancelled: userPrefs.ShowCancelled,
		filterInput:   filter,
		logState:      newLogState(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewLogs {
		cmds = append(cmds, m.refreshLogs())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resizeViewports()
		m.ready = true
		return m, nil

	case tea.FocusMsg:
		m.fireFocus()
		return m, nil

	case tea.BlurMsg:
		m.setVisible(false)
		return m, nil

	case tea.ResumeMsg:
		m.setVisible(true)
		return m, fetchSnapshotCmd(m.store)

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.clampSelection()
		m.updateActivityViewport()
		return m, nil

	case mutationMsg:
		return m.handleMutation(msg)

	case logsMsg:
		m.handleLogs(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.filtering {
		return m.handleFilterKey(msg)
	}
	if m.confirm != nil {
		return m.handleConfirmKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.savePrefs()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Suspend):
		m.setVisible(false)
		return m, tea.Suspend

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		return m.switchView(m.stepView(1))

	case key.Matches(msg, m.keys.ShiftTab):
		return m.switchView(m.stepView(-1))

	case key.Matches(msg, m.keys.ViewTours):
		return m.switchView(ViewTours)
	case key.Matches(msg, m.keys.ViewGuides):
		return m.switchView(ViewGuides)
	case key.Matches(msg, m.keys.ViewActivity):
		return m.switchView(ViewActivity)
	case key.Matches(msg, m.keys.ViewLogs):
		return m.switchView(ViewLogs)

	case key.Matches(msg, m.keys.Sync):
		m.requestSync()
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.refresher != nil {
			m.refresher.Refresh(true)
			m.setFlash("reloading from server", false)
		}
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		if m.snapshot.Toast != "" && m.store != nil {
			m.store.DismissToast()
			m.snapshot.Toast = ""
			return m, nil
		}
		if m.filterInput.Value() != "" {
			m.filterInput.SetValue("")
			m.clampSelection()
			return m, nil
		}
		return m.switchView(ViewTours)
	}

	switch m.currentView {
	case ViewTours:
		return m.handleToursKey(msg)
	case ViewGuides:
		return m.handleGuidesKey(msg)
	case ViewActivity:
		var cmd tea.Cmd
		m.activityViewport, cmd = m.activityViewport.Update(msg)
		return m, cmd
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

func (m Model) stepView(delta int) View {
	for i, v := range viewOrder {
		if v == m.currentView {
			return viewOrder[(i+delta+len(viewOrder))%len(viewOrder)]
		}
	}
	return ViewTours
}

func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	m.currentView = v
	if v == ViewLogs {
		return m, m.refreshLogs()
	}
	return m, nil
}

// fireFocus handles the terminal regaining focus. A focus event also means
// the terminal is visible again.
func (m *Model) fireFocus() {
	if m.triggers.Focus != nil {
		m.triggers.Focus.Fire(syncer.TriggerFocus)
	}
	m.setVisible(true)
}

func (m *Model) setVisible(visible bool) {
	if m.triggers.Visibility != nil {
		m.triggers.Visibility.SetVisible(visible)
	}
}

// requestSync asks the orchestrator for a manual sync. Only admins run the
// orchestrator, so other roles get a status message instead.
func (m *Model) requestSync() {
	if !m.session.IsAdmin() {
		m.setFlash("booking sync needs an admin session", true)
		return
	}
	if m.snapshot.Sync.State == syncer.InProgress {
		m.setFlash("sync already in progress", false)
		return
	}
	if m.triggers.Manual == nil || !m.triggers.Manual.Fire(syncer.TriggerManual) {
		m.setFlash("sync request dropped, one is already queued", false)
		return
	}
	m.setFlash("sync requested", false)
}

func (m *Model) setFlash(msg string, isErr bool) {
	m.flash = msg
	m.flashErr = isErr
	m.flashAt = m.now()
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	p := m.prefs
	p.Theme = m.theme.Name
	p.LastView = viewNames[m.currentView]
	p.ShowCancelled = m.showCancelled
	if err := prefs.Save(m.prefsPath, p); err != nil {
		m.log.Warnf("save prefs: %v", err)
	}
	m.prefs = p
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
		if m.snapshot.Toast != "" && m.now().Sub(m.snapshot.ToastAt) > toastTTL {
			m.store.DismissToast()
		}
	}
	if m.flash != "" && m.now().Sub(m.flashAt) > flashTTL {
		m.flash = ""
	}
	if m.currentView == ViewLogs && m.logState.follow {
		cmds = append(cmds, m.refreshLogs())
	}
	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

func (m Model) handleMutation(msg mutationMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err == nil:
		m.setFlash(msg.op, false)
	case api.IsNetwork(msg.err):
		m.setFlash(msg.op+" locally; server unreachable", true)
	default:
		m.setFlash(fmt.Sprintf("%s failed: %s", msg.verb, describeError(msg.err)), true)
	}
	if m.refresher != nil {
		m.refresher.Refresh(false)
	}
	return m, fetchSnapshotCmd(m.store)
}

// describeError shortens API errors for the status line.
func describeError(err error) string {
	var se *api.ServerError
	if errors.As(err, &se) {
		if msg := se.Message(); msg != "" {
			return msg
		}
		return fmt.Sprintf("HTTP %d", se.Status)
	}
	return strings.TrimSpace(err.Error())
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	return b.String()
}

// contentHeight is the space left under the header and command bar.
func (m Model) contentHeight() int {
	return max(m.height-2, 3)
}

// renderContent renders the main content area based on current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewTours:
		return m.renderTours()
	case ViewGuides:
		return m.renderGuides()
	case ViewActivity:
		return m.renderActivity()
	case ViewLogs:
		return m.renderLogs()
	default:
		return ""
	}
}

func (m *Model) resizeViewports() {
	h := max(m.contentHeight()-2, 1)
	w := max(m.width-2, 1)
	if !m.ready {
		m.activityViewport = viewport.New(w, h)
		m.logViewport = viewport.New(w, h)
	} else {
		m.activityViewport.Width, m.activityViewport.Height = w, h
		m.logViewport.Width, m.logViewport.Height = w, h
	}
	m.updateActivityViewport()
	m.updateLogViewport()
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type mutationMsg struct {
	op   string // past tense, shown on success
	verb string // shown on failure
	err  error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(opts Options) error {
	m := New(opts)
	programOpts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithReportFocus()}
	if opts.Context != nil {
		programOpts = append(programOpts, tea.WithContext(opts.Context))
	}
	p := tea.NewProgram(m, programOpts...)
	_, err := p.Run()
	if err != nil && opts.Context != nil && opts.Context.Err() != nil {
		return nil
	}
	return err
}
