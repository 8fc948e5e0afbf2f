// Package syncer drives Bokun syncs from the client.
//
// # State Machine
//
// The Orchestrator is either Idle or InProgress. PerformSync claims the
// InProgress state with an atomic compare-and-swap; a call that loses the
// race publishes sync_skipped ("already in progress") and returns without
// touching the remote. The state is released by a deferred store, so it
// returns to Idle on success, on failure and when the remote call panics.
//
// A sync attempt:
//
//  1. publishes sync_started
//  2. asks the server whether syncing is enabled; if not, publishes
//     sync_skipped ("disabled")
//  3. runs the sync, tagged with the trigger for the server's audit log
//  4. on success persists bokun_last_sync and publishes sync_completed,
//     plus a notification when an automatic trigger imported bookings
//  5. on failure publishes sync_failed and leaves bokun_last_sync alone
//
// # Triggers
//
// Request is the entry point for every trigger. Manual triggers always
// proceed. Startup, periodic, focus and visibility triggers proceed only
// when automatic sync is enabled, their own switch (OnStartupSync,
// OnFocusSync) is on, and the interval has elapsed since the last
// successful sync. Focus and visibility triggers are additionally
// debounced with a token bucket.
//
// The periodic timer is owned by the orchestrator. Everything else comes
// from TriggerSource values supplied by the host: the TUI feeds terminal
// focus and resume events, the headless agent feeds SIGUSR1.
//
// # Lifecycle
//
// Start requires an admin session; any other session stops the
// orchestrator. SetConfig applies new settings at runtime and re-arms the
// timer immediately.
package syncer
