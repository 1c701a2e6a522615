// Package state holds the grid's canonical data model and the snapshot store
// that hands applied list results to the UI.
//
// # Overview
//
// Grid is the single source of truth for every view and query parameter:
// search, filters, sort, pagination, hidden columns, column order, view mode,
// expand policy and row selection. Only the grid core mutates it; every other
// component receives a clone.
//
// Two serializable subsets are derived from it:
//
//   - PersistedState (version 1): view and column preferences that survive a
//     restart. Written to the preferences store.
//   - ShareState (version 1): the full state needed to reproduce a view from a
//     link, including query filters. Stored behind an opaque token when a
//     location would otherwise grow too long.
//
// Payloads with an unknown version are ignored, never partially applied.
//
// # Store
//
// Store is a readers-writer guarded container for the most recently applied
// list result. The refresh goroutine writes; the UI reads on its own tick:
//
//	Refresh goroutine:             UI:
//	┌──────────────────┐          ┌──────────────────┐
//	│ store.Begin(gen) │          │                  │
//	│ client.List()    │          │                  │
//	│ store.Update()   │─────────→│ store.Snapshot() │
//	└──────────────────┘ (mutex)  └──────────────────┘
//
// Update has two modes:
//
//	store.Update(gen, page, nil)  → rows replaced, LastError cleared
//	store.Update(gen, nil, err)   → rows kept, LastError recorded
//
// so a failed refresh never blanks rows the user is looking at.
//
// Snapshot returns deep copies of rows, totals and errors so rendering code can
// never race the refresh goroutine.
package state
