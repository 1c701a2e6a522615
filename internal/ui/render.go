package ui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/grid"
	"github.com/five82/gridder/internal/grouping"
	"github.com/five82/gridder/internal/state"
)

// The render functions below return plain text; Model applies styles.

const (
	cellSep        = "  "
	gutterWidth    = 4 // "[x] "
	minColumnWidth = 3
	maxColumnWidth = 40
)

// renderCell formats one value for a cell of the given width. Numbers are
// right-aligned.
func renderCell(value any, width int) string {
	switch v := value.(type) {
	case nil:
		return fit("", width)
	case bool:
		if v {
			return fit("yes", width)
		}
		return fit("no", width)
	case float64, int, int64, json.Number:
		text := truncate(crud.Stringify(v), width)
		return strings.Repeat(" ", max(width-lipgloss.Width(text), 0)) + text
	default:
		return fit(crud.Stringify(v), width)
	}
}

// columnWidths sizes columns to their content, then shrinks the widest ones
// until the row fits in total cells.
func columnWidths(columns []string, rows []crud.Record, total int) []int {
	widths := make([]int, len(columns))
	for i, col := range columns {
		w := len([]rune(col)) + 2 // room for a sort marker
		for _, r := range rows {
			if n := len([]rune(oneLine(crud.Stringify(r[col])))); n > w {
				w = n
			}
		}
		widths[i] = min(max(w, minColumnWidth), maxColumnWidth)
	}
	if total <= 0 {
		return widths
	}
	avail := total - gutterWidth - len(cellSep)*max(len(columns)-1, 0)
	for sum(widths) > avail {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minColumnWidth {
			break
		}
		widths[widest]--
	}
	return widths
}

func sum(in []int) int {
	n := 0
	for _, v := range in {
		n += v
	}
	return n
}

// sortMarker returns the arrow for field, numbered when several columns sort.
func sortMarker(sortBy []state.SortColumn, field string) string {
	for i, s := range sortBy {
		if s.Field != field {
			continue
		}
		arrow := "▲"
		if s.Direction == state.SortDesc {
			arrow = "▼"
		}
		if len(sortBy) > 1 {
			return fmt.Sprintf("%s%d", arrow, i+1)
		}
		return arrow
	}
	return ""
}

// renderHeaderRow renders column titles with sort arrows.
func renderHeaderRow(columns []string, widths []int, sortBy []state.SortColumn) string {
	cells := make([]string, len(columns))
	for i, col := range columns {
		title := col
		if m := sortMarker(sortBy, col); m != "" {
			title = col + " " + m
		}
		cells[i] = fit(title, widths[i])
	}
	return strings.Repeat(" ", gutterWidth) + strings.Join(cells, cellSep)
}

// renderRow renders one record with its selection box.
func renderRow(rec crud.Record, columns []string, widths []int, selected bool) string {
	box := "[ ] "
	if selected {
		box = "[x] "
	}
	cells := make([]string, len(columns))
	for i, col := range columns {
		cells[i] = renderCell(rec[col], widths[i])
	}
	return box + strings.Join(cells, cellSep)
}

// renderPagination describes where the current page sits. Without a known
// total it only says whether more pages follow.
func renderPagination(info grid.PageInfo) string {
	var b strings.Builder
	if info.TotalPages > 0 {
		fmt.Fprintf(&b, "Page %d of %d", info.Page, info.TotalPages)
	} else {
		fmt.Fprintf(&b, "Page %d", info.Page)
	}
	if info.Total != nil {
		noun := "rows"
		if *info.Total == 1 {
			noun = "row"
		}
		fmt.Fprintf(&b, " · %d %s", *info.Total, noun)
	} else if info.HasNext {
		b.WriteString(" · more")
	}
	fmt.Fprintf(&b, " · %d per page", info.PerPage)

	var nav []string
	if info.HasPrev {
		nav = append(nav, "[ prev")
	}
	if info.HasNext {
		nav = append(nav, "] next")
	}
	if len(nav) > 0 {
		b.WriteString("  ")
		b.WriteString(strings.Join(nav, "  "))
	}
	return b.String()
}

// renderActions lists what can be done with the current selection. It is
// empty when nothing is selected.
func renderActions(selected int) string {
	if selected <= 0 {
		return ""
	}
	noun := "rows"
	if selected == 1 {
		noun = "row"
	}
	return fmt.Sprintf("%d %s selected · D delete · X export selection · esc clear", selected, noun)
}

// renderGroupHeader renders a group's title line with its count and summary.
func renderGroupHeader(g grouping.Group, width int) string {
	arrow := "▸"
	if g.Expanded {
		arrow = "▾"
	}
	label := g.Label
	if label == "" {
		label = g.ID
	}
	line := fmt.Sprintf("%s %s (%d)", arrow, label, g.Count)
	if len(g.Summary) > 0 {
		keys := make([]string, 0, len(g.Summary))
		for k := range g.Summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + crud.Stringify(g.Summary[k])
		}
		line += "  " + strings.Join(parts, " ")
	}
	if width > 0 {
		return fit(line, width)
	}
	return line
}

// renderMatrix renders a pivot table: one line per group and one column per
// pivot value. Each cell shows valueField of the record at that position.
func renderMatrix(m grouping.Matrix, valueField string, width int) []string {
	if len(m.Rows) == 0 {
		return nil
	}
	labelWidth := minColumnWidth
	for _, row := range m.Rows {
		labelWidth = max(labelWidth, len([]rune(row.Group.Label)))
	}
	labelWidth = min(labelWidth, maxColumnWidth)

	cellWidth := maxColumnWidth / 2
	if n := len(m.Columns); n > 0 && width > 0 {
		cellWidth = min(max((width-labelWidth)/n-len(cellSep), minColumnWidth), cellWidth)
	}

	header := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		header[i] = fit(c, cellWidth)
	}
	lines := []string{fit("", labelWidth) + cellSep + strings.Join(header, cellSep)}
	for _, row := range m.Rows {
		label := row.Group.Label
		if label == "" {
			label = row.Group.ID
		}
		cells := make([]string, len(m.Columns))
		for i, c := range m.Columns {
			rec, ok := row.Cells[c]
			if !ok {
				cells[i] = fit("·", cellWidth)
				continue
			}
			cells[i] = renderCell(rec[valueField], cellWidth)
		}
		lines = append(lines, fit(label, labelWidth)+cellSep+strings.Join(cells, cellSep))
	}
	return lines
}
