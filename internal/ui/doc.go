// Package ui provides the guidedesk terminal interface.
//
// # Architecture Overview
//
// The UI is a Bubble Tea program. Model holds all view state and reads data
// from a state.Store snapshot on every tick; it never calls the API for
// listings itself. Reloads go through a Refresher (the app poller) and
// mutations through the tours service, whose write-through cache keeps the
// next snapshot consistent even when the server is unreachable.
//
// # Views
//
//   - Tours: list of tours sorted by start time with a detail pane. Paid and
//     cancelled flags can be toggled and tours deleted after confirmation.
//   - Guides: the guide roster with each guide's profile and tours.
//   - Sync activity: the booking sync lifecycle events published by the
//     orchestrator, newest last.
//   - Logs: the tail of the client log file with a minimum level filter.
//
// # Sync Triggers
//
// The terminal stands in for a browser window. Focus reports from the
// terminal fire the focus trigger; losing focus or suspending with ctrl+z
// marks the window hidden, and focus or resume marks it visible again, which
// fires the visibility trigger. "s" fires a manual sync for admin sessions.
// All of these feed syncer trigger sources owned by the app package.
//
// # Key Bindings
//
//   - 1-4, Tab: switch views
//   - j/k, g/G, ctrl+d/u: navigate
//   - p, c, D: toggle paid, toggle cancelled, delete
//   - x: show or hide cancelled tours
//   - /: filter tours by title, guide or customer
//   - s: sync bookings now (admin)
//   - r: reload from the server
//   - T: cycle theme
//   - h/?: help
//   - e or ctrl+c: exit
package ui
