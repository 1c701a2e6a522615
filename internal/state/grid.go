package state

import (
	"encoding/json"
	"sort"
	"time"
)

// StateVersion is the schema version written into persisted and share payloads.
const StateVersion = 1

// ViewMode selects how rows are laid out.
type ViewMode string

const (
	ViewFlat    ViewMode = "flat"
	ViewGrouped ViewMode = "grouped"
	ViewMatrix  ViewMode = "matrix"
)

// Valid reports whether m is one of the known view modes.
func (m ViewMode) Valid() bool {
	switch m {
	case ViewFlat, ViewGrouped, ViewMatrix:
		return true
	}
	return false
}

// ExpandMode is the expand policy for grouped and matrix views.
type ExpandMode string

const (
	ExpandAll      ExpandMode = "all"
	ExpandNone     ExpandMode = "none"
	ExpandExplicit ExpandMode = "explicit"
)

// Valid reports whether m is one of the known expand modes.
func (m ExpandMode) Valid() bool {
	switch m {
	case ExpandAll, ExpandNone, ExpandExplicit:
		return true
	}
	return false
}

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ColumnFilter is one filter entry. Several entries may target the same column.
type ColumnFilter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// JSONValue returns v as encoding/json would decode it back: numbers become
// float64, lists []any and objects map[string]any. Values that cannot be
// encoded are returned unchanged.
func JSONValue(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// NormalizeFilters copies filters with JSON-native values, so they compare
// equal after a round trip through a location or a share token.
func NormalizeFilters(filters []ColumnFilter) []ColumnFilter {
	if filters == nil {
		return nil
	}
	out := make([]ColumnFilter, len(filters))
	for i, f := range filters {
		f.Value = JSONValue(f.Value)
		out[i] = f
	}
	return out
}

// SortColumn is one sort key; slice order is tie-break precedence.
type SortColumn struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Set is a string set.
type Set map[string]struct{}

// NewSet builds a set from values, skipping empty strings.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		if v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

// Has reports membership.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Add inserts v.
func (s Set) Add(v string) { s[v] = struct{}{} }

// Remove deletes v.
func (s Set) Remove(v string) { delete(s, v) }

// Toggle flips membership and returns the new state.
func (s Set) Toggle(v string) bool {
	if s.Has(v) {
		delete(s, v)
		return false
	}
	s[v] = struct{}{}
	return true
}

// Sorted returns members in lexical order.
func (s Set) Sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set. A nil set clones to an empty one.
func (s Set) Clone() Set {
	dup := make(Set, len(s))
	for v := range s {
		dup[v] = struct{}{}
	}
	return dup
}

// Grid is the canonical snapshot of every view and query parameter.
// Only the grid core mutates it.
type Grid struct {
	Search         string
	Filters        []ColumnFilter
	Sort           []SortColumn
	Page           int
	PerPage        int
	HiddenColumns  Set
	ColumnOrder    []string
	ViewMode       ViewMode
	ExpandMode     ExpandMode
	ExpandedGroups Set
	SelectedRows   Set
}

// Default returns the initial state before persisted and location overlays.
func Default(perPage int, mode ViewMode) Grid {
	if perPage <= 0 {
		perPage = 25
	}
	if !mode.Valid() {
		mode = ViewFlat
	}
	return Grid{
		Page:           1,
		PerPage:        perPage,
		HiddenColumns:  Set{},
		ViewMode:       mode,
		ExpandMode:     ExpandAll,
		ExpandedGroups: Set{},
		SelectedRows:   Set{},
	}
}

// Clone deep-copies the state.
func (g Grid) Clone() Grid {
	dup := g
	dup.Filters = append([]ColumnFilter(nil), g.Filters...)
	dup.Sort = append([]SortColumn(nil), g.Sort...)
	dup.ColumnOrder = append([]string(nil), g.ColumnOrder...)
	dup.HiddenColumns = g.HiddenColumns.Clone()
	dup.ExpandedGroups = g.ExpandedGroups.Clone()
	dup.SelectedRows = g.SelectedRows.Clone()
	return dup
}

// PersistedState is the subset of Grid that survives reloads.
type PersistedState struct {
	Version        int        `json:"version"`
	ViewMode       ViewMode   `json:"viewMode,omitempty"`
	ExpandMode     ExpandMode `json:"expandMode,omitempty"`
	ExpandedGroups []string   `json:"expandedGroups,omitempty"`
	HiddenColumns  []string   `json:"hiddenColumns,omitempty"`
	ColumnOrder    []string   `json:"columnOrder,omitempty"`
	UpdatedAt      string     `json:"updatedAt,omitempty"`
}

// ShareState is everything needed to reproduce a view from a link.
type ShareState struct {
	Version   int             `json:"version"`
	Search    string          `json:"search,omitempty"`
	Page      int             `json:"page,omitempty"`
	PerPage   int             `json:"perPage,omitempty"`
	Filters   []ColumnFilter  `json:"filters,omitempty"`
	Sort      []SortColumn    `json:"sort,omitempty"`
	Persisted *PersistedState `json:"persisted,omitempty"`
	UpdatedAt string          `json:"updatedAt,omitempty"`
}

// Persisted extracts the persisted subset, stamped with now.
func (g Grid) Persisted() PersistedState {
	return PersistedState{
		Version:        StateVersion,
		ViewMode:       g.ViewMode,
		ExpandMode:     g.ExpandMode,
		ExpandedGroups: g.ExpandedGroups.Sorted(),
		HiddenColumns:  g.HiddenColumns.Sorted(),
		ColumnOrder:    append([]string(nil), g.ColumnOrder...),
		UpdatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Share extracts the full shareable state.
func (g Grid) Share() ShareState {
	p := g.Persisted()
	return ShareState{
		Version:   StateVersion,
		Search:    g.Search,
		Page:      g.Page,
		PerPage:   g.PerPage,
		Filters:   append([]ColumnFilter(nil), g.Filters...),
		Sort:      append([]SortColumn(nil), g.Sort...),
		Persisted: &p,
		UpdatedAt: p.UpdatedAt,
	}
}

// ApplyPersisted overlays p. Payloads with an unknown version are ignored and
// invalid enum values leave the current value in place.
func (g *Grid) ApplyPersisted(p PersistedState) bool {
	if p.Version != StateVersion {
		return false
	}
	if p.ViewMode.Valid() {
		g.ViewMode = p.ViewMode
	}
	if p.ExpandMode.Valid() {
		g.ExpandMode = p.ExpandMode
	}
	if p.ExpandedGroups != nil {
		g.ExpandedGroups = NewSet(p.ExpandedGroups...)
	}
	if p.HiddenColumns != nil {
		g.HiddenColumns = NewSet(p.HiddenColumns...)
	}
	if p.ColumnOrder != nil {
		g.ColumnOrder = append([]string(nil), p.ColumnOrder...)
	}
	return true
}

// ApplyShare overlays a share state.
func (g *Grid) ApplyShare(s ShareState) bool {
	if s.Version != StateVersion {
		return false
	}
	g.Search = s.Search
	g.Filters = append([]ColumnFilter(nil), s.Filters...)
	g.Sort = append([]SortColumn(nil), s.Sort...)
	if s.Page > 0 {
		g.Page = s.Page
	}
	if s.PerPage > 0 {
		g.PerPage = s.PerPage
	}
	if s.Persisted != nil {
		g.ApplyPersisted(*s.Persisted)
	}
	return true
}

// VisibleColumns returns columns in display order with hidden ones removed.
// Columns named in ColumnOrder come first; the rest keep their declared order.
func (g Grid) VisibleColumns(declared []string) []string {
	ordered := OrderColumns(declared, g.ColumnOrder)
	out := make([]string, 0, len(ordered))
	for _, c := range ordered {
		if !g.HiddenColumns.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// OrderColumns applies an explicit order override to the declared columns.
// Unknown names in order are dropped.
func OrderColumns(declared, order []string) []string {
	if len(order) == 0 {
		return append([]string(nil), declared...)
	}
	known := NewSet(declared...)
	seen := Set{}
	out := make([]string, 0, len(declared))
	for _, c := range order {
		if known.Has(c) && !seen.Has(c) {
			out = append(out, c)
			seen.Add(c)
		}
	}
	for _, c := range declared {
		if !seen.Has(c) {
			out = append(out, c)
		}
	}
	return out
}
