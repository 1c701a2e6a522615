// Package grid is the data grid core: it owns the canonical view state for one
// API resource, keeps the shareable location and stored preferences in sync
// with it, and fetches pages through the configured behaviors.
//
// # Overview
//
// A Grid is built from Options and resolves its starting state in a fixed
// order:
//
//  1. Defaults (page 1, PerPage, DefaultViewMode, expand all)
//  2. Persisted preferences from the prefs.Store
//  3. The location (Options.Location), which wins on conflict
//  4. Options.Initial, applied without a fetch when its endpoint matches
//
// # Mutations
//
// Every user-visible change goes through a method (SetSearch, AddFilter,
// ToggleSort, SetPage, ToggleColumn, SetViewMode, ...). After each one the grid
// re-encodes its location, saves the persisted subset when it changed, and
// schedules a refresh in the background. Search, filter, sort and page-size
// changes return to page 1 and clear the selection.
//
// # Refresh ordering
//
// Refresh bumps a generation counter and cancels the previous request. A
// response is applied only if its generation is still current, so the last
// call wins even when the transport ignores cancellation. A failed refresh
// leaves the previous rows in place and records the error in the snapshot.
//
// # Grouped views
//
// In grouped and matrix modes the request carries group_by. If the server
// rejects that contract the grid drops to flat mode for the session, reports
// the reason through the notifier and refetches. Choosing a view mode again
// clears the fallback.
//
// # Teardown
//
// Destroy cancels the in-flight request and pending debounce timer and waits
// for background refreshes to exit.
package grid
