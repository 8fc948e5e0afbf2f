// Package app is the composition root of the guidedesk client.
//
// # Overview
//
// Bootstrap loads the TOML config, opens the client state file and the
// session, and builds the API client, the listing cache, the tours service
// and the booking sync orchestrator. The three entry points share it:
//
//   - Run: the terminal UI
//   - RunAgent: the headless sync agent
//   - SyncNow: a single manual sync for the sync command
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       │
//	       ├─────> Bootstrap()          config, logger, state, session, client
//	       ├─────> state.Store{}        shared snapshot
//	       ├─────> Poller.Run()         tours.Service -> store.Update()
//	       ├─────> watchChanges()       server change stream -> Poller.Refresh
//	       ├─────> watchConfig()        [sync] edits -> Orchestrator.SetConfig
//	       ├─────> Orchestrator.Start() admin sessions only
//	       └─────> ui.Run()             blocks until quit
//
// Sync lifecycle events reach the UI through the notifier: each event is
// recorded in the store, and a completed sync forces a listing reload.
//
// # Polling Behavior
//
// The poller refreshes on the configured interval. After consecutive
// failures it backs off exponentially up to five minutes; a successful
// refresh restores the normal interval. The UI and the change stream can
// request an immediate refresh at any time without blocking.
//
// # Error Handling
//
// Bootstrap failures and a missing login are returned to the caller.
// Everything after startup is logged and retried: listing reads fall back
// to the cache, the change stream reconnects with backoff, and a config
// directory that cannot be watched only disables live reload.
package app
