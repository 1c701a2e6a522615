// Package app is gridder's composition root.
//
// # Overview
//
// Run loads the config, opens the log file and wires every component for one
// grid before handing the terminal to the UI:
//
//  1. Load config (TOML or YAML) and build the zap logger
//  2. Build the API client and open the preference store
//     (file, sqlite or memory, optionally synced to the server)
//  3. Warm up concurrently: hydrate remote preferences and, when no columns
//     are configured, fetch the resource schema
//  4. Create the grid from defaults, stored preferences and the --view
//     location, then issue the first fetch
//  5. Start the poller, the realtime feed and the preferences watcher
//  6. Run the Bubble Tea program until the user quits or the context ends
//
// Build exposes steps 2 to 4 for the headless commands (url, export).
//
// # Components
//
//   - app.go: Run and the background workers' lifetimes
//   - wire.go: Build and the per-component constructors
//   - poller.go: periodic refresh with exponential backoff
//   - logging.go: file-backed zap logger
//
// # Data Flow
//
//	poller ──┐
//	realtime ┼──► grid.Refresh ──► state.Store ──► ui (tick)
//	keys ────┘         │
//	                   └──► prefs.Store ◄── prefs.Watch (other terminals)
//
// # Refresh cadence
//
// The poller refreshes every poll_interval. Each consecutive failure doubles
// the wait up to 30s; the first success resets it. Superseded refreshes do not
// count as failures. Realtime events and the UI's refresh key call Kick, which
// refreshes immediately and coalesces bursts.
//
// # Shutdown
//
// Cancelling the context stops the poller, the feed and the watcher. The grid
// is destroyed and the store closed, which flushes any pending preference
// sync.
package app
