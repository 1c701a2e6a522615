package grid

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/five82/gridder/internal/behavior"
	"github.com/five82/gridder/internal/grouping"
	"github.com/five82/gridder/internal/notify"
	"github.com/five82/gridder/internal/state"
	"github.com/five82/gridder/internal/urlstate"
)

// ErrDestroyed is returned by every operation after Destroy.
var ErrDestroyed = errors.New("grid: destroyed")

// Grid owns the canonical state for one resource listing. All mutation goes
// through its methods; each one persists the result and schedules a refresh.
type Grid struct {
	opts     Options
	logger   *zap.Logger
	notifier notify.Notifier
	engine   *grouping.Engine

	life context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// persistMu orders location and store writes so they follow mutation order.
	persistMu sync.Mutex

	mu            sync.Mutex
	st            state.Grid
	columns       []string
	location      url.Values
	lastPersisted state.PersistedState
	// fallbackFrom is the view mode the user chose before a grouped fallback.
	// It is what the store keeps while the session shows flat rows.
	fallbackFrom state.ViewMode
	results       state.Store
	gen           uint64
	cancel        context.CancelFunc
	searchTimer   *time.Timer
	hydrated      bool
	destroyed     bool
}

type nopNotifier struct{}

func (nopNotifier) Notify(notify.Level, string) {}

// New builds a grid. State is resolved from defaults, then the persisted
// preferences, then the location; the location wins on conflict. New performs
// no network I/O; call Start to issue the first fetch.
func New(opts Options) (*Grid, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("grid: fetcher is required")
	}
	if strings.TrimSpace(opts.Resource) == "" && strings.TrimSpace(opts.Endpoint) == "" {
		return nil, fmt.Errorf("grid: resource or endpoint is required")
	}
	opts = opts.withDefaults()

	g := &Grid{
		opts:     opts,
		logger:   opts.Logger.With(zap.String("resource", opts.Resource)),
		notifier: opts.Notifier,
		engine:   opts.Grouping,
		columns:  append([]string(nil), opts.Columns...),
	}
	if g.notifier == nil {
		g.notifier = nopNotifier{}
	}
	g.life, g.stop = context.WithCancel(context.Background())

	st := state.Default(opts.PerPage, opts.DefaultViewMode)
	var resolver urlstate.Resolver
	if opts.Store != nil {
		resolver = opts.Store
		if p, ok := opts.Store.LoadPersisted(); ok {
			st.ApplyPersisted(p)
			g.lastPersisted = normalizePersisted(p)
		}
	}
	urlstate.Decode(opts.Location, resolver).Apply(&st)
	g.st = st
	g.location = g.encode(st)

	if in := opts.Initial; in != nil && in.Endpoint != "" && in.Endpoint == g.BuildAPIURL() {
		page := in.Page
		g.results.Update(0, &page, nil)
		g.hydrated = true
		g.logger.Debug("applied initial result without fetching", zap.String("endpoint", in.Endpoint))
	}
	return g, nil
}

// Start issues the first fetch in the background unless an initial result
// was already applied.
func (g *Grid) Start() {
	g.mu.Lock()
	hydrated := g.hydrated
	g.mu.Unlock()
	if !hydrated {
		g.scheduleRefresh()
	}
}

// Destroy cancels in-flight requests and pending timers and waits for
// background work to finish. It is safe to call more than once.
func (g *Grid) Destroy() {
	g.mu.Lock()
	if g.destroyed {
		g.mu.Unlock()
		return
	}
	g.destroyed = true
	if g.searchTimer != nil {
		g.searchTimer.Stop()
		g.searchTimer = nil
	}
	if g.cancel != nil {
		g.cancel()
	}
	g.stop()
	g.mu.Unlock()

	g.wg.Wait()
}

// State returns a copy of the current grid state.
func (g *Grid) State() state.Grid {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.Clone()
}

// Snapshot returns the last applied list result.
func (g *Grid) Snapshot() state.Snapshot {
	return g.results.Snapshot()
}

// Location returns the shareable query describing the current view.
func (g *Grid) Location() url.Values {
	g.mu.Lock()
	defer g.mu.Unlock()
	dup := make(url.Values, len(g.location))
	for k, v := range g.location {
		dup[k] = append([]string(nil), v...)
	}
	return dup
}

// Columns returns the declared columns.
func (g *Grid) Columns() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.columns...)
}

// VisibleColumns returns the declared columns in display order minus hidden ones.
func (g *Grid) VisibleColumns() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.VisibleColumns(g.columns)
}

// Resource returns the resource name.
func (g *Grid) Resource() string { return g.opts.Resource }

// IDField returns the record field used as row id.
func (g *Grid) IDField() string { return g.opts.IDField }

// GroupingActive reports whether the current view is served grouped.
func (g *Grid) GroupingActive() bool {
	g.mu.Lock()
	mode := g.st.ViewMode
	g.mu.Unlock()
	return g.engine.Active(mode)
}

// FallbackReason reports why grouping was abandoned, if it was.
func (g *Grid) FallbackReason() (string, bool) {
	return g.engine.FallbackReason()
}

// Groups returns the grouped view of the current rows, or nil in flat mode.
func (g *Grid) Groups() []grouping.Group {
	g.mu.Lock()
	st := g.st.Clone()
	g.mu.Unlock()
	if !g.engine.Active(st.ViewMode) {
		return nil
	}
	snap := g.results.Snapshot()
	return grouping.Build(snap.Items, snap.Groups, g.engine.Field, g.opts.IDField, st)
}

// Matrix returns the pivoted view, or an empty matrix outside matrix mode.
func (g *Grid) Matrix() grouping.Matrix {
	g.mu.Lock()
	mode := g.st.ViewMode
	g.mu.Unlock()
	if mode != state.ViewMatrix || g.engine.PivotField == "" {
		return grouping.Matrix{}
	}
	return grouping.Pivot(g.Groups(), g.engine.PivotField)
}

// SelectedIDs returns selected row ids in lexical order.
func (g *Grid) SelectedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.SelectedRows.Sorted()
}

type mutation struct {
	resetPage bool
	persist   bool
	refresh   bool
}

var (
	queryChange = mutation{resetPage: true, persist: true, refresh: true}
	viewChange  = mutation{persist: true, refresh: true}
	localChange = mutation{persist: true}
)

// mutate applies fn under the lock. fn returns false when nothing changed, in
// which case nothing is persisted or refreshed.
func (g *Grid) mutate(m mutation, fn func(st *state.Grid) bool) error {
	g.mu.Lock()
	if g.destroyed {
		g.mu.Unlock()
		return ErrDestroyed
	}
	if !fn(&g.st) {
		g.mu.Unlock()
		return nil
	}
	if m.resetPage {
		g.st.Page = 1
		g.st.SelectedRows = state.Set{}
	}
	g.mu.Unlock()

	if m.persist {
		g.persist()
	}
	if m.refresh {
		g.scheduleRefresh()
	}
	return nil
}

// persist writes the location and, when the persisted subset changed, the store.
func (g *Grid) persist() {
	g.persistMu.Lock()
	defer g.persistMu.Unlock()

	g.mu.Lock()
	st := g.st.Clone()
	stored := g.storedLocked(st)
	g.mu.Unlock()

	loc := g.encode(st)
	p := normalizePersisted(stored)

	g.mu.Lock()
	g.location = loc
	changed := !reflect.DeepEqual(p, g.lastPersisted)
	if changed {
		g.lastPersisted = p
	}
	g.mu.Unlock()

	if !changed || g.opts.Store == nil {
		return
	}
	if err := g.opts.Store.SavePersisted(stored); err != nil {
		g.logger.Warn("save persisted state failed", zap.Error(err))
	}
}

// storedLocked is the persisted subset of st as the store should keep it: a
// session-only grouped fallback does not replace the user's view mode.
func (g *Grid) storedLocked(st state.Grid) state.PersistedState {
	p := st.Persisted()
	if g.fallbackFrom != "" && st.ViewMode == state.ViewFlat {
		p.ViewMode = g.fallbackFrom
	}
	return p
}

func (g *Grid) encode(st state.Grid) url.Values {
	var sharer urlstate.Sharer
	if g.opts.Store != nil {
		sharer = g.opts.Store
	}
	d := urlstate.Defaults{PerPage: g.opts.PerPage, ViewMode: g.opts.DefaultViewMode}
	return urlstate.Encode(g.opts.Location, st, d, g.opts.Limits, sharer)
}

// normalizePersisted drops the timestamp so payloads can be compared.
func normalizePersisted(p state.PersistedState) state.PersistedState {
	p.UpdatedAt = ""
	p.Version = state.StateVersion
	return p
}

func (g *Grid) scheduleRefresh() {
	g.mu.Lock()
	if g.destroyed {
		g.mu.Unlock()
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		if err := g.Refresh(g.life); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrDestroyed) && !errors.Is(err, context.Canceled) {
			g.logger.Debug("background refresh failed", zap.Error(err))
		}
	}()
}

// SetSearch replaces the search term and returns to page 1.
func (g *Grid) SetSearch(term string) error {
	return g.mutate(queryChange, func(st *state.Grid) bool {
		if st.Search == term {
			return false
		}
		st.Search = term
		return true
	})
}

// SetSearchDebounced applies term once no further call arrives within the
// debounce window.
func (g *Grid) SetSearchDebounced(term string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return ErrDestroyed
	}
	if g.searchTimer != nil {
		g.searchTimer.Stop()
	}
	g.searchTimer = time.AfterFunc(g.opts.SearchDebounce, func() {
		if err := g.SetSearch(term); err != nil && !errors.Is(err, ErrDestroyed) {
			g.logger.Debug("debounced search failed", zap.Error(err))
		}
	})
	return nil
}

// SetFilters replaces all filters. Values are stored in their JSON form.
func (g *Grid) SetFilters(filters []state.ColumnFilter) error {
	return g.mutate(queryChange, func(st *state.Grid) bool {
		st.Filters = state.NormalizeFilters(filters)
		return true
	})
}

// AddFilter appends one filter. Entries on an existing column are ORed with it.
func (g *Grid) AddFilter(f state.ColumnFilter) error {
	f.Column = strings.TrimSpace(f.Column)
	if f.Column == "" {
		return fmt.Errorf("filter column is required")
	}
	if f.Operator == "" {
		f.Operator = "eq"
	}
	f.Value = state.JSONValue(f.Value)
	return g.mutate(queryChange, func(st *state.Grid) bool {
		st.Filters = append(st.Filters, f)
		return true
	})
}

// RemoveFilter drops the filter at index i.
func (g *Grid) RemoveFilter(i int) error {
	return g.mutate(queryChange, func(st *state.Grid) bool {
		if i < 0 || i >= len(st.Filters) {
			return false
		}
		st.Filters = append(st.Filters[:i:i], st.Filters[i+1:]...)
		return true
	})
}

// ClearFilters removes every filter.
func (g *Grid) ClearFilters() error {
	return g.mutate(queryChange, func(st *state.Grid) bool {
		if len(st.Filters) == 0 {
			return false
		}
		st.Filters = nil
		return true
	})
}

// ToggleSort cycles field through asc, desc and unsorted. With multi other
// sort keys are kept.
func (g *Grid) ToggleSort(field string, multi bool) error {
	return g.mutate(queryChange, func(st *state.Grid) bool {
		st.Sort = g.opts.Behaviors.Sort.Toggle(st.Sort, field, multi)
		return true
	})
}

// SetPage moves to page n (at least 1).
func (g *Grid) SetPage(n int) error {
	if n < 1 {
		n = 1
	}
	return g.mutate(viewChange, func(st *state.Grid) bool {
		if st.Page == n {
			return false
		}
		st.Page = n
		if !g.opts.PreserveSelection {
			st.SelectedRows = state.Set{}
		}
		return true
	})
}

// NextPage advances when more rows are known or assumed to exist.
func (g *Grid) NextPage() error {
	info := g.PageInfo()
	if !info.HasNext {
		return nil
	}
	return g.SetPage(info.Page + 1)
}

// PrevPage goes back one page.
func (g *Grid) PrevPage() error {
	info := g.PageInfo()
	if info.Page <= 1 {
		return nil
	}
	return g.SetPage(info.Page - 1)
}

// SetPerPage changes the page size and returns to page 1.
func (g *Grid) SetPerPage(n int) error {
	if n <= 0 {
		return fmt.Errorf("per page must be positive, got %d", n)
	}
	return g.mutate(queryChange, func(st *state.Grid) bool {
		if st.PerPage == n {
			return false
		}
		st.PerPage = n
		return true
	})
}

// ToggleColumn hides or shows column.
func (g *Grid) ToggleColumn(column string) error {
	if strings.TrimSpace(column) == "" {
		return nil
	}
	return g.mutate(viewChange, func(st *state.Grid) bool {
		if st.HiddenColumns == nil {
			st.HiddenColumns = state.Set{}
		}
		st.HiddenColumns.Toggle(column)
		return true
	})
}

// SetColumnOrder overrides the display order.
func (g *Grid) SetColumnOrder(order []string) error {
	return g.mutate(viewChange, func(st *state.Grid) bool {
		st.ColumnOrder = append([]string(nil), order...)
		return true
	})
}

// SetViewMode switches layout. An explicit switch clears any earlier grouped
// fallback so the server contract is tried again.
func (g *Grid) SetViewMode(mode state.ViewMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown view mode %q", mode)
	}
	g.engine.Reset()
	return g.mutate(queryChange, func(st *state.Grid) bool {
		g.fallbackFrom = ""
		st.ViewMode = mode
		return true
	})
}

// ToggleGroup flips one group's expand state.
func (g *Grid) ToggleGroup(id string) error {
	visible := grouping.GroupIDs(g.Groups())
	return g.mutate(localChange, func(st *state.Grid) bool {
		grouping.Toggle(st, id, visible)
		return true
	})
}

// ExpandAll expands every group.
func (g *Grid) ExpandAll() error {
	return g.mutate(localChange, func(st *state.Grid) bool {
		grouping.ExpandAll(st)
		return true
	})
}

// CollapseAll collapses every group.
func (g *Grid) CollapseAll() error {
	return g.mutate(localChange, func(st *state.Grid) bool {
		grouping.CollapseAll(st)
		return true
	})
}

// ToggleRow flips selection of one row.
func (g *Grid) ToggleRow(id string) error {
	if id == "" {
		return nil
	}
	return g.mutate(mutation{}, func(st *state.Grid) bool {
		if st.SelectedRows == nil {
			st.SelectedRows = state.Set{}
		}
		st.SelectedRows.Toggle(id)
		return true
	})
}

// SelectAll selects every row of the current result.
func (g *Grid) SelectAll() error {
	snap := g.results.Snapshot()
	return g.mutate(mutation{}, func(st *state.Grid) bool {
		if st.SelectedRows == nil {
			st.SelectedRows = state.Set{}
		}
		for _, r := range snap.Items {
			if id := r.ID(g.opts.IDField); id != "" {
				st.SelectedRows.Add(id)
			}
		}
		return true
	})
}

// ClearSelection deselects every row.
func (g *Grid) ClearSelection() error {
	return g.mutate(mutation{}, func(st *state.Grid) bool {
		if len(st.SelectedRows) == 0 {
			return false
		}
		st.SelectedRows = state.Set{}
		return true
	})
}

// ResetState returns to defaults and forgets persisted preferences.
func (g *Grid) ResetState() error {
	if g.opts.Store != nil {
		if err := g.opts.Store.ClearPersisted(); err != nil {
			g.logger.Warn("clear persisted state failed", zap.Error(err))
		}
	}
	g.engine.Reset()
	return g.mutate(viewChange, func(st *state.Grid) bool {
		g.fallbackFrom = ""
		*st = state.Default(g.opts.PerPage, g.opts.DefaultViewMode)
		return true
	})
}

// ReconcilePersisted applies preferences changed outside this grid (another
// terminal sharing the store). The in-memory state stays authoritative for
// everything the payload does not carry.
func (g *Grid) ReconcilePersisted(p state.PersistedState) error {
	g.mu.Lock()
	if g.destroyed {
		g.mu.Unlock()
		return ErrDestroyed
	}
	next := g.st.Clone()
	if !next.ApplyPersisted(p) {
		g.mu.Unlock()
		return nil
	}
	if g.fallbackFrom != "" && next.ViewMode == g.fallbackFrom {
		next.ViewMode = state.ViewFlat
	}
	normalized := normalizePersisted(g.storedLocked(next))
	if reflect.DeepEqual(normalized, g.lastPersisted) {
		g.mu.Unlock()
		return nil
	}
	needsFetch := next.ViewMode != g.st.ViewMode ||
		!reflect.DeepEqual(next.VisibleColumns(g.columns), g.st.VisibleColumns(g.columns))
	g.st = next
	g.lastPersisted = normalized
	g.mu.Unlock()

	g.persist()
	if needsFetch {
		g.scheduleRefresh()
	}
	return nil
}

// QueryParams returns the behavior-derived parameters for the current state,
// without grouping.
func (g *Grid) QueryParams() behavior.Params {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opts.Behaviors.QueryParams(g.st, g.columns)
}
