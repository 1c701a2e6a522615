package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the grid.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Refresh    key.Binding
	Escape     key.Binding

	// Navigation
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	NextPage key.Binding
	PrevPage key.Binding
	Left     key.Binding
	Right    key.Binding

	// Query
	Search       key.Binding
	Filter       key.Binding
	ClearFilters key.Binding
	Sort         key.Binding
	SortMulti    key.Binding
	MorePerPage  key.Binding
	LessPerPage  key.Binding

	// View
	ToggleColumn key.Binding
	CycleView    key.Binding
	ToggleGroup  key.Binding
	ExpandAll    key.Binding
	CollapseAll  key.Binding
	Detail       key.Binding
	Reset        key.Binding
	CopyLink     key.Binding

	// Selection
	Select    key.Binding
	SelectAll key.Binding
	Delete    key.Binding
	Export    key.Binding
	ExportSel key.Binding

	// Input
	Confirm key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit:       key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "Quit")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "Toggle help")),
		CycleTheme: key.NewBinding(key.WithKeys("T"), key.WithHelp("T", "Cycle theme")),
		Refresh:    key.NewBinding(key.WithKeys("r", "ctrl+r"), key.WithHelp("r", "Refresh now")),
		Escape:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "Close pane / clear selection")),

		Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("j/k", "Move down/up")),
		Down:     key.NewBinding(key.WithKeys("j", "down")),
		Top:      key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g/G", "First/last row")),
		Bottom:   key.NewBinding(key.WithKeys("G", "end")),
		NextPage: key.NewBinding(key.WithKeys("]", "pgdown"), key.WithHelp("[/]", "Previous/next page")),
		PrevPage: key.NewBinding(key.WithKeys("[", "pgup")),
		Left:     key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/l", "Move column cursor")),
		Right:    key.NewBinding(key.WithKeys("l", "right")),

		Search:       key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "Search")),
		Filter:       key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "Add filter (column op value)")),
		ClearFilters: key.NewBinding(key.WithKeys("F"), key.WithHelp("F", "Clear filters")),
		Sort:         key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "Sort by column")),
		SortMulti:    key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "Add column to sort")),
		MorePerPage:  key.NewBinding(key.WithKeys("+"), key.WithHelp("+/-", "Rows per page")),
		LessPerPage:  key.NewBinding(key.WithKeys("-")),

		ToggleColumn: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "Hide/show column")),
		CycleView:    key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "Flat/grouped/matrix")),
		ToggleGroup:  key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "Expand/collapse group")),
		ExpandAll:    key.NewBinding(key.WithKeys("E"), key.WithHelp("E/C", "Expand/collapse all")),
		CollapseAll:  key.NewBinding(key.WithKeys("C")),
		Detail:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "Row detail")),
		Reset:        key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "Reset view")),
		CopyLink:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "Show view link")),

		Select:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "Select row")),
		SelectAll: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "Select page")),
		Delete:    key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "Delete selected")),
		Export:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x/X", "Export query/selection")),
		ExportSel: key.NewBinding(key.WithKeys("X")),

		Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "Confirm")),
	}
}

// helpSections groups bindings for the help overlay.
func (k keyMap) helpSections() []helpSection {
	return []helpSection{
		{title: "Navigation", bindings: []key.Binding{k.Up, k.Top, k.NextPage, k.Left, k.Detail}},
		{title: "Query", bindings: []key.Binding{k.Search, k.Filter, k.ClearFilters, k.Sort, k.SortMulti, k.MorePerPage}},
		{title: "View", bindings: []key.Binding{k.ToggleColumn, k.CycleView, k.ToggleGroup, k.ExpandAll, k.Reset, k.CopyLink}},
		{title: "Selection", bindings: []key.Binding{k.Select, k.SelectAll, k.Delete, k.Export, k.Escape}},
		{title: "General", bindings: []key.Binding{k.Refresh, k.CycleTheme, k.Help, k.Quit}},
	}
}
