package ui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/grid"
	"github.com/five82/gridder/internal/notify"
	"github.com/five82/gridder/internal/state"
)

type stubFetcher struct {
	mu    sync.Mutex
	lists int
}

func (f *stubFetcher) List(context.Context, string) (crud.Page, error) {
	f.mu.Lock()
	f.lists++
	f.mu.Unlock()
	total := 3
	return crud.Page{Items: []crud.Record{
		{"id": "1", "title": "Alpha"},
		{"id": "2", "title": "Beta"},
		{"id": "3", "title": "Gamma"},
	}, Total: &total}, nil
}

func (f *stubFetcher) FetchDetail(_ context.Context, _, id string) (crud.Record, error) {
	return crud.Record{"id": id, "title": "Detail " + id}, nil
}

func (f *stubFetcher) FetchSchema(context.Context, string) (crud.Schema, error) {
	return crud.Schema{}, nil
}

func (f *stubFetcher) FetchTabs(context.Context, string) ([]crud.Tab, error) {
	return nil, nil
}

func newTestModel(t *testing.T) (Model, *grid.Grid) {
	t.Helper()
	g, err := grid.New(grid.Options{
		Resource: "articles",
		Fetcher:  &stubFetcher{},
		Columns:  []string{"id", "title"},
	})
	if err != nil {
		t.Fatalf("grid.New returned error: %v", err)
	}
	t.Cleanup(g.Destroy)
	if err := g.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	m := New(Options{Grid: g, Toasts: notify.NewQueue(0, 0), PrefsPath: t.TempDir() + "/prefs.toml"})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), g
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msgs ...tea.KeyMsg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestModel_SyncsRowsFromGrid(t *testing.T) {
	m, _ := newTestModel(t)
	if len(m.lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(m.lines))
	}
	view := m.View()
	for _, want := range []string{"Alpha", "Gamma", "Page 1 of 1"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q", want)
		}
	}
}

func TestModel_SelectRowAdvancesCursor(t *testing.T) {
	m, g := newTestModel(t)
	m = press(t, m, runes("j"), tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})

	if !g.State().SelectedRows.Has("2") {
		t.Fatalf("selected rows = %v, want row 2", g.State().SelectedRows)
	}
	if m.cursor != 2 {
		t.Fatalf("cursor = %d, want 2", m.cursor)
	}
	if !strings.Contains(m.View(), "1 row selected") {
		t.Fatalf("footer does not show the selection actions")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if len(g.State().SelectedRows) != 0 {
		t.Fatalf("esc left rows selected: %v", g.State().SelectedRows)
	}
}

func TestModel_SortUsesColumnCursor(t *testing.T) {
	m, g := newTestModel(t)
	press(t, m, runes("l"), runes("s"))

	sortBy := g.State().Sort
	if len(sortBy) != 1 || sortBy[0].Field != "title" {
		t.Fatalf("sort = %+v, want title", sortBy)
	}
}

func TestModel_CycleViewMode(t *testing.T) {
	m, g := newTestModel(t)
	m = press(t, m, runes("v"))
	if got := g.State().ViewMode; got != state.ViewGrouped {
		t.Fatalf("view mode = %q, want %q", got, state.ViewGrouped)
	}
	press(t, m, runes("v"), runes("v"))
	if got := g.State().ViewMode; got != state.ViewFlat {
		t.Fatalf("view mode = %q, want %q after a full cycle", got, state.ViewFlat)
	}
}

func TestModel_SearchInputSubmits(t *testing.T) {
	m, g := newTestModel(t)
	m = press(t, m, runes("/"))
	if m.mode != modeSearch {
		t.Fatalf("mode = %v, want search", m.mode)
	}
	m = press(t, m, runes("b"), runes("e"), tea.KeyMsg{Type: tea.KeyEnter})

	if m.mode != modeTable {
		t.Fatalf("mode = %v, want table after enter", m.mode)
	}
	if got := g.State().Search; got != "be" {
		t.Fatalf("search = %q, want %q", got, "be")
	}
}

func TestModel_FilterInputSeedsColumn(t *testing.T) {
	m, g := newTestModel(t)
	m = press(t, m, runes("l"), runes("f"))
	if got := m.input.Value(); got != "title " {
		t.Fatalf("filter seed = %q, want %q", got, "title ")
	}
	press(t, m, runes("B"), runes("e"), tea.KeyMsg{Type: tea.KeyEnter})

	filters := g.State().Filters
	if len(filters) != 1 || filters[0].Column != "title" || filters[0].Value != "Be" {
		t.Fatalf("filters = %+v, want title eq Be", filters)
	}
}

func TestModel_InvalidFilterRaisesToast(t *testing.T) {
	m, g := newTestModel(t)
	m = press(t, m, runes("f"))
	m.input.SetValue("nope x")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(g.State().Filters) != 0 {
		t.Fatalf("invalid filter was applied")
	}
	toast, ok := m.toasts.Latest()
	if !ok || toast.Level != notify.Warning {
		t.Fatalf("latest toast = %+v, %v; want a warning", toast, ok)
	}
}

func TestModel_DeleteWithoutSelectionWarns(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, runes("D"))
	if m.busy != "" {
		t.Fatalf("busy = %q, want idle", m.busy)
	}
	if _, ok := m.toasts.Latest(); !ok {
		t.Fatalf("expected a toast asking for a selection")
	}
}

func TestModel_DetailLoadsRecord(t *testing.T) {
	m, _ := newTestModel(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if m.mode != modeDetail || cmd == nil {
		t.Fatalf("enter did not open the detail pane")
	}
	next, _ = m.Update(cmd())
	m = next.(Model)
	if !strings.Contains(m.detail.View(), "Detail 1") {
		t.Fatalf("detail pane = %q, want the fetched record", m.detail.View())
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != modeTable {
		t.Fatalf("esc did not close the detail pane")
	}
}

func TestModel_HelpAndQuit(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, runes("?"))
	if m.mode != modeHelp || !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Fatalf("help overlay not shown")
	}
	m = press(t, m, runes("x"))
	if m.mode != modeTable {
		t.Fatalf("any key should close help")
	}

	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatalf("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q did not quit")
	}
}

func TestModel_CopyLinkShowsLocation(t *testing.T) {
	m, g := newTestModel(t)
	if err := g.SetSearch("abc"); err != nil {
		t.Fatalf("SetSearch returned error: %v", err)
	}
	m = press(t, m, runes("y"))
	if !strings.HasPrefix(m.link, "?") || !strings.Contains(m.link, "abc") {
		t.Fatalf("link = %q, want the encoded location", m.link)
	}
}
