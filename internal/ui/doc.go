// Package ui provides the terminal front end for a data grid.
//
// # Architecture Overview
//
// The package is a Bubble Tea program. Model owns no data of its own: every
// tick it copies the grid's snapshot, state and page info, then renders them.
// Key presses call grid operations, which schedule their own refreshes, so
// the UI never issues a list request directly.
//
// # Package Structure
//
//   - model.go: Model, key handling, commands and Run
//   - view.go: header, filter bar, body and footer rendering
//   - render.go: plain-text rendering of cells, rows, groups and pivots
//   - input.go: the filter mini-language typed after "f"
//   - keys.go, help.go: key bindings and the help overlay
//   - theme.go, style_helpers.go, strings.go: colors and text helpers
//
// # View Modes
//
//   - Flat: one line per record
//   - Grouped: group header lines with their rows when expanded
//   - Matrix: one line per group and one column per pivot value
//
// # Event Flow
//
//  1. Run starts the program on the alternate screen
//  2. A 250ms tick syncs the Model from the grid
//  3. Keys mutate grid state; the grid debounces search and refreshes
//  4. Detail, export and bulk actions run as commands and report back as messages
//  5. Context cancellation ends the program
package ui
