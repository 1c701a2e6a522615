package grouping

import (
	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/state"
)

// Group is one rendered group of rows.
type Group struct {
	ID       string
	Label    string
	Count    int
	Rows     []crud.Record
	Summary  map[string]any
	Expanded bool
}

// IsExpanded resolves the expand policy of g for one group.
func IsExpanded(g state.Grid, id string) bool {
	switch g.ExpandMode {
	case state.ExpandNone:
		return false
	case state.ExpandExplicit:
		return g.ExpandedGroups.Has(id)
	default:
		return true
	}
}

const ungroupedLabel = "(none)"

// Build groups rows by field. When the server sent group summaries they
// define the groups and their order; rows they do not claim land in a trailing
// ungrouped group. Otherwise groups appear in first-seen order.
func Build(rows []crud.Record, envelope []crud.Group, field, idField string, g state.Grid) []Group {
	var groups []Group
	if len(envelope) > 0 {
		groups = fromEnvelope(rows, envelope, idField)
	} else {
		groups = fromRows(rows, field)
	}
	for i := range groups {
		groups[i].Expanded = IsExpanded(g, groups[i].ID)
	}
	return groups
}

func fromEnvelope(rows []crud.Record, envelope []crud.Group, idField string) []Group {
	byID := make(map[string]crud.Record, len(rows))
	for _, r := range rows {
		byID[r.ID(idField)] = r
	}
	claimed := make(map[string]bool, len(rows))

	out := make([]Group, 0, len(envelope)+1)
	for _, env := range envelope {
		grp := Group{ID: env.ID, Label: env.Label, Count: env.Count, Summary: env.Summary}
		if grp.Label == "" {
			grp.Label = env.ID
		}
		for _, id := range env.RowIDs {
			if r, ok := byID[id]; ok && !claimed[id] {
				grp.Rows = append(grp.Rows, r)
				claimed[id] = true
			}
		}
		if grp.Count == 0 {
			grp.Count = len(grp.Rows)
		}
		out = append(out, grp)
	}

	var rest []crud.Record
	for _, r := range rows {
		if !claimed[r.ID(idField)] {
			rest = append(rest, r)
		}
	}
	if len(rest) > 0 {
		out = append(out, Group{ID: "", Label: ungroupedLabel, Count: len(rest), Rows: rest})
	}
	return out
}

func fromRows(rows []crud.Record, field string) []Group {
	index := map[string]int{}
	var out []Group
	for _, r := range rows {
		key := r.String(field)
		i, ok := index[key]
		if !ok {
			label := key
			if label == "" {
				label = ungroupedLabel
			}
			i = len(out)
			index[key] = i
			out = append(out, Group{ID: key, Label: label})
		}
		out[i].Rows = append(out[i].Rows, r)
		out[i].Count++
	}
	return out
}

// Matrix is a grouped view pivoted on one field: each group is a row and each
// distinct pivot value a column.
type Matrix struct {
	Columns []string
	Rows    []MatrixRow
}

// MatrixRow holds one group's records keyed by pivot value.
type MatrixRow struct {
	Group Group
	Cells map[string]crud.Record
}

// Pivot builds the matrix for groups. Columns keep first-seen order. When a
// group has several rows for one pivot value the first wins.
func Pivot(groups []Group, pivotField string) Matrix {
	var m Matrix
	seen := map[string]bool{}
	for _, grp := range groups {
		row := MatrixRow{Group: grp, Cells: map[string]crud.Record{}}
		for _, r := range grp.Rows {
			key := r.String(pivotField)
			if !seen[key] {
				seen[key] = true
				m.Columns = append(m.Columns, key)
			}
			if _, ok := row.Cells[key]; !ok {
				row.Cells[key] = r
			}
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// Toggle flips one group. Under a blanket policy the current view is first
// converted to an explicit set built from visible, so only id changes.
func Toggle(g *state.Grid, id string, visible []string) {
	switch g.ExpandMode {
	case state.ExpandExplicit:
		if g.ExpandedGroups == nil {
			g.ExpandedGroups = state.Set{}
		}
		g.ExpandedGroups.Toggle(id)
		return
	case state.ExpandNone:
		g.ExpandedGroups = state.NewSet(id)
	default:
		set := state.NewSet(visible...)
		set.Remove(id)
		g.ExpandedGroups = set
	}
	g.ExpandMode = state.ExpandExplicit
}

// ExpandAll switches to the expand-everything policy.
func ExpandAll(g *state.Grid) {
	g.ExpandMode = state.ExpandAll
	g.ExpandedGroups = state.Set{}
}

// CollapseAll switches to the collapse-everything policy.
func CollapseAll(g *state.Grid) {
	g.ExpandMode = state.ExpandNone
	g.ExpandedGroups = state.Set{}
}

// GroupIDs lists the ids of groups in order.
func GroupIDs(groups []Group) []string {
	ids := make([]string, len(groups))
	for i, grp := range groups {
		ids[i] = grp.ID
	}
	return ids
}
