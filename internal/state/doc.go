// Package state provides thread-safe state shared between the background
// refresh loop, the sync event stream and the UI.
//
// # Overview
//
// Three producers write into a single Store:
//
//	Refresher (app poller)     Sync notifier            UI
//	┌──────────────────┐      ┌────────────────┐      ┌──────────────────┐
//	│ tours.Service    │      │ events.Event   │      │                  │
//	│   Tours/Guides   │      │                │      │                  │
//	│      ↓           │      │      ↓         │      │                  │
//	│ store.Update()   │─────→│ store.Record() │─────→│ store.Snapshot() │
//	└──────────────────┘      └────────────────┘      └──────────────────┘
//
// The UI never talks to the network directly; it renders whatever the last
// Snapshot holds.
//
// # Update Semantics
//
// A refresh that falls back to an empty listing because the API failed
// keeps the rows already on screen and only records the error. Stale cache
// results do replace the rows, since they are at least as recent as what
// the UI already shows. Two consecutive failures mark the snapshot offline.
//
// # Sync Events
//
// Record tracks the orchestrator's state from its events: sync_started sets
// InProgress, sync_completed and sync_failed return to Idle, and a completed
// sync moves LastSync forward. Every lifecycle event is appended to a bounded
// activity log. Notification events become the toast shown in the header
// until DismissToast is called.
//
// # Copying
//
// Snapshot returns copies of every slice and wraps the last error, so the UI
// can hold a snapshot across renders without racing the writers.
//
// The zero Store is ready to use.
package state
