package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Tab        key.Binding
	ShiftTab   key.Binding
	Escape     key.Binding
	Suspend    key.Binding

	// View switching
	ViewTours    key.Binding
	ViewGuides   key.Binding
	ViewActivity key.Binding
	ViewLogs     key.Binding

	// Data
	Sync    key.Binding
	Refresh key.Binding

	// Tours
	TogglePaid      key.Binding
	ToggleCancelled key.Binding
	Delete          key.Binding
	ShowCancelled   key.Binding
	Filter          key.Binding
	Confirm         key.Binding

	// Navigation
	Up           key.Binding
	Down         key.Binding
	Top          key.Binding
	Bottom       key.Binding
	HalfPageUp   key.Binding
	HalfPageDown key.Binding

	// Logs
	ToggleFollow key.Binding
	CycleLevel   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Next view"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "Previous view"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Dismiss / back"),
		),
		Suspend: key.NewBinding(
			key.WithKeys("ctrl+z"),
			key.WithHelp("ctrl+z", "Suspend"),
		),

		ViewTours: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Tours"),
		),
		ViewGuides: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Guides"),
		),
		ViewActivity: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "Sync activity"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "Logs"),
		),

		Sync: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Sync bookings now"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Reload from server"),
		),

		TogglePaid: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "Toggle paid"),
		),
		ToggleCancelled: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Toggle cancelled"),
		),
		Delete: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "Delete"),
		),
		ShowCancelled: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Show/hide cancelled"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Filter"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y", "Confirm"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("j/k", "Move up/down"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g/G", "Top/bottom"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
		),
		HalfPageUp: key.NewBinding(
			key.WithKeys("ctrl+u", "pgup"),
			key.WithHelp("ctrl+d/u", "Half page down/up"),
		),
		HalfPageDown: key.NewBinding(
			key.WithKeys("ctrl+d", "pgdown"),
		),

		ToggleFollow: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "Toggle follow"),
		),
		CycleLevel: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Cycle log level"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Sync, k.Refresh, k.Tab, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap. Each inner slice is one column.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ViewTours, k.ViewGuides, k.ViewActivity, k.ViewLogs, k.Tab, k.ShiftTab, k.Up, k.Top, k.HalfPageUp},
		{k.TogglePaid, k.ToggleCancelled, k.Delete, k.ShowCancelled, k.Filter, k.Escape},
		{k.Sync, k.Refresh, k.ToggleFollow, k.CycleLevel, k.CycleTheme, k.Suspend, k.Help, k.Quit},
	}
}
