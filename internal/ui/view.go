package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/gridder/internal/behavior"
	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/state"
)

// renderMain renders header, filter bar, body and footer.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderFilterBar())
	b.WriteString("\n")
	if m.mode == modeDetail {
		b.WriteString(m.detail.View())
	} else {
		b.WriteString(m.renderBody())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderHeader shows the resource, view mode, load state and the newest toast.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	parts := []string{
		bg.Render("gridder", styles.Logo),
		bg.Render(m.grid.Resource(), styles.Text.Bold(true)),
		bg.Render(viewModeLabel(m.st.ViewMode), styles.AccentText),
	}
	if reason, ok := m.grid.FallbackReason(); ok {
		parts = append(parts, bg.Render("flat fallback: "+truncate(reason, 40), styles.WarningText))
	}

	switch {
	case m.snapshot.Loading:
		parts = append(parts, bg.Render(m.spinner.View()+" loading", styles.InfoText))
	case m.snapshot.IsOffline():
		parts = append(parts, bg.Render(fmt.Sprintf("● offline (%d)", m.snapshot.ConsecutiveFailures), styles.DangerText))
	case m.snapshot.HasData:
		parts = append(parts, bg.Render("updated "+m.snapshot.LastUpdated.Format("15:04:05"), styles.MutedText))
	}
	if m.live != nil {
		if m.live() {
			parts = append(parts, bg.Render("● live", styles.SuccessText))
		} else {
			parts = append(parts, bg.Render("○ live", styles.FaintText))
		}
	}

	line := bg.Join(parts, "  ")
	if m.toasts != nil {
		if t, ok := m.toasts.Latest(); ok {
			badge := styles.LevelStyle(t.Level).Render(strings.ToUpper(t.Level.String()))
			room := m.width - lipgloss.Width(line) - lipgloss.Width(badge) - 6
			if room > 8 {
				line += bg.Spaces(2) + badge + bg.Spaces(1) + bg.Render(truncate(t.Message, room), styles.Text)
			}
		}
	}
	return styles.Header.Width(m.width).Render(line)
}

// renderFilterBar shows search, filters and sort, or the active input.
func (m Model) renderFilterBar() string {
	styles := m.theme.Styles()
	switch m.mode {
	case modeSearch, modeFilter, modeExport:
		return m.input.View()
	}

	var parts []string
	if m.st.Search != "" {
		parts = append(parts, styles.AccentText.Render("/")+styles.Text.Render(m.st.Search))
	}
	for _, f := range m.st.Filters {
		parts = append(parts, styles.InfoText.Render("["+describeFilter(f)+"]"))
	}
	if len(m.st.Sort) > 0 {
		keys := make([]string, len(m.st.Sort))
		for i, s := range m.st.Sort {
			keys[i] = s.Field + " " + s.Direction
		}
		parts = append(parts, styles.MutedText.Render("order: "+strings.Join(keys, ", ")))
	}
	if len(parts) == 0 {
		return styles.FaintText.Render("no search or filters · ? for help")
	}
	return strings.Join(parts, "  ")
}

// renderBody renders the rows for the current view mode.
func (m Model) renderBody() string {
	styles := m.theme.Styles()
	height := m.bodyHeight()

	if m.snapshot.LastError != nil && !m.snapshot.HasData {
		msg := fmt.Sprintf("Could not load %s: %v", m.grid.Resource(), m.snapshot.LastError)
		return padLines(styles.DangerText.Render(truncate(msg, m.width)), height)
	}
	if len(m.lines) == 0 {
		if m.snapshot.Loading || !m.snapshot.HasData {
			return padLines(styles.MutedText.Render("Loading..."), height)
		}
		return padLines(styles.MutedText.Render("No rows match."), height)
	}

	if len(m.matrix.Rows) > 0 {
		return m.renderMatrixBody(height)
	}

	var rows []crud.Record
	for _, l := range m.lines {
		if l.record != nil {
			rows = append(rows, l.record)
		}
	}
	widths := columnWidths(m.columns, rows, m.width)

	header := renderHeaderRow(m.columns, widths, m.st.Sort)
	out := []string{m.highlightColumn(header, widths, styles)}

	end := min(m.offset+height-1, len(m.lines))
	idField := m.grid.IDField()
	for i := m.offset; i < end; i++ {
		l := m.lines[i]
		var text string
		style := styles.Text
		if l.group != nil {
			text = renderGroupHeader(*l.group, m.width)
			style = styles.GroupHeader
		} else {
			selected := m.st.SelectedRows.Has(l.record.ID(idField))
			text = renderRow(l.record, m.columns, widths, selected)
			if selected {
				style = styles.Marked
			}
		}
		if i == m.cursor {
			style = styles.Selected
		}
		out = append(out, style.Render(fit(text, m.width)))
	}
	return padLines(strings.Join(out, "\n"), height)
}

// highlightColumn styles the header with the column cursor picked out.
func (m Model) highlightColumn(header string, widths []int, styles Styles) string {
	if len(m.columns) == 0 {
		return styles.ColumnTitle.Render(header)
	}
	start := gutterWidth
	for i := 0; i < m.colCursor && i < len(widths); i++ {
		start += widths[i] + len(cellSep)
	}
	runes := []rune(header)
	if start >= len(runes) || m.colCursor >= len(widths) {
		return styles.ColumnTitle.Render(header)
	}
	end := min(start+widths[m.colCursor], len(runes))
	return styles.ColumnTitle.Render(string(runes[:start])) +
		styles.Selected.Bold(true).Render(string(runes[start:end])) +
		styles.ColumnTitle.Render(string(runes[end:]))
}

func (m Model) renderMatrixBody(height int) string {
	styles := m.theme.Styles()
	valueField := m.grid.IDField()
	if col, ok := m.currentColumn(); ok {
		valueField = col
	}
	lines := renderMatrix(m.matrix, valueField, m.width)
	out := []string{styles.ColumnTitle.Render(lines[0])}
	end := min(m.offset+height-1, len(lines)-1)
	for i := m.offset; i < end; i++ {
		style := styles.Text
		if i == m.cursor {
			style = styles.Selected
		}
		out = append(out, style.Render(fit(lines[i+1], m.width)))
	}
	return padLines(strings.Join(out, "\n"), height)
}

// renderFooter shows pagination, the selection actions and the share link.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	parts := []string{renderPagination(m.info)}
	if actions := renderActions(len(m.st.SelectedRows)); actions != "" {
		parts = append(parts, actions)
	}
	if m.busy != "" {
		parts = append(parts, m.spinner.View()+" "+m.busy)
	}
	if m.link != "" {
		parts = append(parts, "link: "+m.link)
	}
	return styles.Footer.Width(m.width).Render(truncate(strings.Join(parts, "  │  "), max(m.width-2, 0)))
}

func padLines(s string, height int) string {
	n := strings.Count(s, "\n") + 1
	if n >= height {
		return s
	}
	return s + strings.Repeat("\n", height-n)
}

// detailOrder lists declared columns present in rec, then the remaining
// fields alphabetically.
func detailOrder(declared []string, rec crud.Record) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range declared {
		if _, ok := rec[c]; ok && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	var rest []string
	for k := range rec {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// renderDetail renders a record as aligned label/value lines.
func renderDetail(rec crud.Record, fields []string, styles Styles) string {
	labelWidth := 0
	for _, f := range fields {
		labelWidth = max(labelWidth, len([]rune(titleCase(f))))
	}
	labelStyle := styles.MutedText.Width(labelWidth + 2)

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(labelStyle.Render(titleCase(f)))
		b.WriteString(styles.Text.Render(crud.Stringify(rec[f])))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render("esc to close"))
	return b.String()
}

// saveExport writes a completed export into the working directory under the
// server-provided name.
func saveExport(out behavior.ExportOutcome) error {
	name := filepath.Base(out.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "export"
	}
	if err := os.WriteFile(name, out.Body, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func viewModeLabel(mode state.ViewMode) string {
	return titleCase(string(mode))
}
