package grid

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/five82/gridder/internal/behavior"
	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/grouping"
	"github.com/five82/gridder/internal/notify"
	"github.com/five82/gridder/internal/prefs"
	"github.com/five82/gridder/internal/state"
	"github.com/five82/gridder/internal/urlstate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeFetcher struct {
	mu      sync.Mutex
	urls    []string
	respond func(call int, rawURL string) (crud.Page, error)
}

func (f *fakeFetcher) List(_ context.Context, rawURL string) (crud.Page, error) {
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	call := len(f.urls)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return crud.Page{Items: sampleRows()}, nil
	}
	return respond(call, rawURL)
}

func (f *fakeFetcher) FetchDetail(_ context.Context, resource, id string) (crud.Record, error) {
	return crud.Record{"id": id, "resource": resource}, nil
}

func (f *fakeFetcher) FetchSchema(_ context.Context, resource string) (crud.Schema, error) {
	return crud.Schema{Resource: resource, Fields: []crud.Field{{Name: "id"}, {Name: "title"}, {Name: "body"}}}, nil
}

func (f *fakeFetcher) FetchTabs(context.Context, string) ([]crud.Tab, error) {
	return []crud.Tab{{ID: "main", Label: "Main", Fields: []string{"title"}}}, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

func (f *fakeFetcher) url(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.urls[i]
}

func sampleRows() []crud.Record {
	return []crud.Record{
		{"id": "1", "title": "Hello", "translation_group_id": "g1", "locale": "en"},
		{"id": "2", "title": "Bonjour", "translation_group_id": "g1", "locale": "fr"},
		{"id": "3", "title": "Other", "translation_group_id": "g2", "locale": "en"},
	}
}

func newGrid(t *testing.T, opts Options) (*Grid, *fakeFetcher) {
	t.Helper()
	f, ok := opts.Fetcher.(*fakeFetcher)
	if !ok || f == nil {
		f = &fakeFetcher{}
		opts.Fetcher = f
	}
	if opts.Resource == "" {
		opts.Resource = "articles"
	}
	if opts.Columns == nil {
		opts.Columns = []string{"id", "title", "body"}
	}
	g, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(g.Destroy)
	return g, f
}

func groupedOptions(mode state.ViewMode) Options {
	return Options{
		DefaultViewMode: mode,
		Grouping:        &grouping.Engine{Enabled: true, Field: "translation_group_id", PivotField: "locale", RequireEnvelope: true},
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{Resource: "articles"})
	assert.Error(t, err)
	_, err = New(Options{Fetcher: &fakeFetcher{}})
	assert.Error(t, err)
}

func TestBuildAPIURL_DeterministicAndComplete(t *testing.T) {
	g, _ := newGrid(t, Options{
		Behaviors: behavior.Set{Search: behavior.Search{Fields: []string{"title"}}},
		Location: url.Values{
			"search":        {"go"},
			"page":          {"3"},
			"filters":       {`[{"column":"status","operator":"eq","value":"draft"}]`},
			"sort":          {`[{"field":"title","direction":"desc"}]`},
			"hiddenColumns": {`["body"]`},
		},
	})

	first := g.BuildAPIURL()
	assert.Equal(t, first, g.BuildAPIURL())

	u, err := url.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, "/articles", u.Path)
	q := u.Query()
	assert.Equal(t, "%go%", q.Get("title__ilike"))
	assert.Equal(t, "draft", q.Get("status"))
	assert.Equal(t, "title desc", q.Get("order"))
	assert.Equal(t, "25", q.Get("limit"))
	assert.Equal(t, "50", q.Get("offset"))
	assert.Equal(t, "id,title", q.Get("fields"))
}

func TestBuildAPIURL_GroupByFollowsViewMode(t *testing.T) {
	grouped, _ := newGrid(t, groupedOptions(state.ViewGrouped))
	assert.Contains(t, grouped.BuildAPIURL(), "group_by=translation_group_id")

	flat, _ := newGrid(t, groupedOptions(state.ViewFlat))
	assert.NotContains(t, flat.BuildAPIURL(), "group_by")
}

func TestRefresh_GroupedFallbackOn501(t *testing.T) {
	queue := notify.NewQueue(time.Hour, 10)
	opts := groupedOptions(state.ViewGrouped)
	opts.Notifier = queue
	var mu sync.Mutex
	supported := false
	opts.Fetcher = &fakeFetcher{respond: func(_ int, rawURL string) (crud.Page, error) {
		mu.Lock()
		defer mu.Unlock()
		if !strings.Contains(rawURL, "group_by=") {
			return crud.Page{Items: sampleRows()}, nil
		}
		if !supported {
			return crud.Page{}, &crud.APIError{Status: 501, Message: "not implemented"}
		}
		return crud.Page{Items: sampleRows(), Grouped: true, Groups: []crud.Group{{ID: "g1", RowIDs: []string{"1", "2"}}}}, nil
	}}
	g, f := newGrid(t, opts)

	require.NoError(t, g.Refresh(context.Background()))

	assert.Equal(t, 2, f.calls())
	assert.Contains(t, f.url(0), "group_by=")
	assert.NotContains(t, f.url(1), "group_by=")
	assert.Equal(t, state.ViewFlat, g.State().ViewMode)
	assert.NotContains(t, g.BuildAPIURL(), "group_by")
	assert.Len(t, g.Snapshot().Items, 3)

	reason, ok := g.FallbackReason()
	assert.True(t, ok)
	assert.Contains(t, reason, "501")
	latest, ok := queue.Latest()
	require.True(t, ok)
	assert.Equal(t, notify.Warning, latest.Level)

	// Choosing grouped again retries the contract.
	mu.Lock()
	supported = true
	mu.Unlock()
	require.NoError(t, g.SetViewMode(state.ViewGrouped))
	assert.Contains(t, g.BuildAPIURL(), "group_by=")
	require.Eventually(t, func() bool { return g.Snapshot().Grouped }, time.Second, 5*time.Millisecond)
	_, ok = g.FallbackReason()
	assert.False(t, ok)
}

func TestRefresh_GroupedFallbackKeepsStoredViewMode(t *testing.T) {
	store := prefs.NewLocalStore(prefs.NewMemoryBackend(), "articles")
	opts := groupedOptions(state.ViewGrouped)
	opts.Store = store
	opts.Fetcher = &fakeFetcher{respond: func(_ int, rawURL string) (crud.Page, error) {
		if strings.Contains(rawURL, "group_by=") {
			return crud.Page{}, &crud.APIError{Status: 501, Message: "not implemented"}
		}
		return crud.Page{Items: sampleRows()}, nil
	}}
	g, _ := newGrid(t, opts)

	require.NoError(t, g.Refresh(context.Background()))
	assert.Equal(t, state.ViewFlat, g.State().ViewMode)

	p, ok := store.LoadPersisted()
	require.True(t, ok)
	assert.Equal(t, state.ViewGrouped, p.ViewMode, "fallback is for this session only")

	require.NoError(t, g.ToggleColumn("body"))
	p, ok = store.LoadPersisted()
	require.True(t, ok)
	assert.Equal(t, state.ViewGrouped, p.ViewMode)
	assert.Equal(t, []string{"body"}, p.HiddenColumns)

	// An explicit choice of flat is stored as such.
	require.NoError(t, g.SetViewMode(state.ViewFlat))
	p, _ = store.LoadPersisted()
	assert.Equal(t, state.ViewFlat, p.ViewMode)
}

func TestRefresh_UndecodableGroupedBodyFallsBack(t *testing.T) {
	opts := groupedOptions(state.ViewGrouped)
	opts.Fetcher = &fakeFetcher{respond: func(_ int, rawURL string) (crud.Page, error) {
		if strings.Contains(rawURL, "group_by=") {
			return crud.NormalizePage([]byte(`{"items":[],"groups":[{"id":"a","row_ids":{"bad":true}}]}`))
		}
		return crud.Page{Items: sampleRows()}, nil
	}}
	g, f := newGrid(t, opts)

	require.NoError(t, g.Refresh(context.Background()))
	assert.Equal(t, 2, f.calls())
	assert.Equal(t, state.ViewFlat, g.State().ViewMode)
	assert.Len(t, g.Snapshot().Items, 3)
	_, ok := g.FallbackReason()
	assert.True(t, ok)
}

func TestRefresh_NumericGroupRowIDs(t *testing.T) {
	opts := groupedOptions(state.ViewGrouped)
	opts.Fetcher = &fakeFetcher{respond: func(int, string) (crud.Page, error) {
		return crud.NormalizePage([]byte(`{"items":[{"id":1,"translation_group_id":"a"},{"id":2,"translation_group_id":"a"}],"groups":[{"id":"a","count":2,"row_ids":[1,2]}]}`))
	}}
	g, _ := newGrid(t, opts)

	require.NoError(t, g.Refresh(context.Background()))
	assert.Equal(t, state.ViewGrouped, g.State().ViewMode)
	groups := g.Groups()
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Rows, 2)
}

func TestRefresh_GroupedEnvelopeIsUsed(t *testing.T) {
	opts := groupedOptions(state.ViewGrouped)
	opts.Fetcher = &fakeFetcher{respond: func(int, string) (crud.Page, error) {
		return crud.Page{
			Items:   sampleRows(),
			Grouped: true,
			Groups:  []crud.Group{{ID: "g1", RowIDs: []string{"1", "2"}}, {ID: "g2", RowIDs: []string{"3"}}},
		}, nil
	}}
	g, _ := newGrid(t, opts)
	require.NoError(t, g.Refresh(context.Background()))

	groups := g.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups[0].Count)

	require.NoError(t, g.SetViewMode(state.ViewMatrix))
	require.Eventually(t, func() bool { return !g.Snapshot().Loading }, time.Second, 5*time.Millisecond)
	m := g.Matrix()
	assert.Equal(t, []string{"en", "fr"}, m.Columns)
}

func TestMutation_ResetsPageBeforeRefresh(t *testing.T) {
	block := make(chan struct{})
	opts := Options{Fetcher: &fakeFetcher{respond: func(int, string) (crud.Page, error) {
		<-block
		return crud.Page{Items: sampleRows()}, nil
	}}}
	g, _ := newGrid(t, opts)
	defer close(block)

	require.NoError(t, g.SetPage(5))
	require.NoError(t, g.ToggleRow("1"))
	require.NoError(t, g.AddFilter(state.ColumnFilter{Column: "status", Value: "draft"}))

	st := g.State()
	assert.Equal(t, 1, st.Page)
	assert.Empty(t, st.SelectedRows)
	assert.Contains(t, g.BuildAPIURL(), "offset=0")
	assert.False(t, g.Location().Has(urlstate.KeyPage))
}

func TestRefresh_LastCallWins(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	f := &fakeFetcher{respond: func(call int, _ string) (crud.Page, error) {
		if call == 1 {
			close(firstStarted)
			<-releaseFirst // ignores cancellation on purpose
			return crud.Page{Items: []crud.Record{{"id": "stale"}}}, nil
		}
		return crud.Page{Items: []crud.Record{{"id": "fresh"}}}, nil
	}}
	g, _ := newGrid(t, Options{Fetcher: f})

	errc := make(chan error, 1)
	go func() { errc <- g.Refresh(context.Background()) }()
	<-firstStarted

	require.NoError(t, g.Refresh(context.Background()))
	close(releaseFirst)
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	snap := g.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "fresh", snap.Items[0].ID("id"))
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestRefresh_FailureKeepsRowsAndNotifiesOnce(t *testing.T) {
	queue := notify.NewQueue(time.Hour, 10)
	fail := false
	var mu sync.Mutex
	f := &fakeFetcher{respond: func(int, string) (crud.Page, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return crud.Page{}, errors.New("connection refused")
		}
		return crud.Page{Items: sampleRows()}, nil
	}}
	g, _ := newGrid(t, Options{Fetcher: f, Notifier: queue})

	require.NoError(t, g.Refresh(context.Background()))
	mu.Lock()
	fail = true
	mu.Unlock()
	assert.Error(t, g.Refresh(context.Background()))
	assert.Error(t, g.Refresh(context.Background()))

	snap := g.Snapshot()
	assert.Len(t, snap.Items, 3)
	assert.True(t, snap.IsOffline())
	assert.Len(t, queue.Active(), 1)
}

func TestRefresh_ClampsPastLastPage(t *testing.T) {
	total := 30
	f := &fakeFetcher{respond: func(_ int, rawURL string) (crud.Page, error) {
		if strings.Contains(rawURL, "offset=100") {
			return crud.Page{Total: &total}, nil
		}
		return crud.Page{Items: sampleRows(), Total: &total}, nil
	}}
	g, _ := newGrid(t, Options{Fetcher: f, PerPage: 25, Location: url.Values{"page": {"5"}}})

	require.NoError(t, g.Refresh(context.Background()))
	assert.Equal(t, 2, g.State().Page)
	assert.Equal(t, 2, f.calls())
}

func TestRefresh_SelectionSurvivesOnlyForPresentRows(t *testing.T) {
	g, _ := newGrid(t, Options{})
	require.NoError(t, g.ToggleRow("1"))
	require.NoError(t, g.ToggleRow("99"))
	require.NoError(t, g.Refresh(context.Background()))
	assert.Equal(t, []string{"1"}, g.SelectedIDs())
}

func TestStart_SkipsFetchWhenInitialMatches(t *testing.T) {
	reference, _ := newGrid(t, Options{})
	endpoint := reference.BuildAPIURL()

	g, f := newGrid(t, Options{Initial: &Initial{Endpoint: endpoint, Page: crud.Page{Items: sampleRows()}}})
	g.Start()
	g.Destroy()
	assert.Equal(t, 0, f.calls())
	assert.True(t, g.Snapshot().HasData)

	stale, f2 := newGrid(t, Options{Initial: &Initial{Endpoint: endpoint + "&x=1", Page: crud.Page{Items: sampleRows()}}})
	stale.Start()
	require.Eventually(t, func() bool { return f2.calls() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPersistence_LocationWinsOverStore(t *testing.T) {
	store := prefs.NewLocalStore(prefs.NewMemoryBackend(), "articles")

	first, _ := newGrid(t, Options{Store: store})
	require.NoError(t, first.ToggleColumn("body"))
	require.NoError(t, first.SetViewMode(state.ViewMatrix))
	first.Destroy()

	p, ok := store.LoadPersisted()
	require.True(t, ok)
	assert.Equal(t, []string{"body"}, p.HiddenColumns)

	restored, _ := newGrid(t, Options{Store: store})
	st := restored.State()
	assert.True(t, st.HiddenColumns.Has("body"))
	assert.Equal(t, state.ViewMatrix, st.ViewMode)

	overridden, _ := newGrid(t, Options{Store: store, Location: url.Values{"view_mode": {"flat"}, "hiddenColumns": {`["title"]`}}})
	st = overridden.State()
	assert.Equal(t, state.ViewFlat, st.ViewMode)
	assert.True(t, st.HiddenColumns.Has("title"))
	assert.False(t, st.HiddenColumns.Has("body"))
}

func TestLocation_LongFiltersBecomeShareToken(t *testing.T) {
	store := prefs.NewLocalStore(prefs.NewMemoryBackend(), "articles")
	g, _ := newGrid(t, Options{Store: store, Limits: urlstate.Limits{MaxURLLength: 2000, MaxFiltersLength: 120}})

	var filters []state.ColumnFilter
	for i := 0; i < 10; i++ {
		filters = append(filters, state.ColumnFilter{Column: "tag", Operator: "eq", Value: fmt.Sprintf("tag-value-%02d", i)})
	}
	require.NoError(t, g.SetFilters(filters))

	loc := g.Location()
	require.True(t, loc.Has(urlstate.KeyState))
	assert.False(t, loc.Has(urlstate.KeyFilters))

	shared, ok := store.ResolveShare(loc.Get(urlstate.KeyState))
	require.True(t, ok)
	assert.Equal(t, filters, shared.Filters)

	reopened, _ := newGrid(t, Options{Store: store, Location: loc})
	assert.Equal(t, filters, reopened.State().Filters)
}

func TestLocation_ShareTokenSurvivesUnrelatedMutations(t *testing.T) {
	store := prefs.NewLocalStore(prefs.NewMemoryBackend(), "articles")
	g, _ := newGrid(t, Options{Store: store, Limits: urlstate.Limits{MaxURLLength: 2000, MaxFiltersLength: 120}})

	var filters []state.ColumnFilter
	for i := 0; i < 10; i++ {
		filters = append(filters, state.ColumnFilter{Column: "tag", Operator: "eq", Value: fmt.Sprintf("tag-value-%02d", i)})
	}
	require.NoError(t, g.SetFilters(filters))
	first := g.Location().Get(urlstate.KeyState)
	require.NotEmpty(t, first)

	for i := 0; i < prefs.DefaultMaxShareEntries+1; i++ {
		require.NoError(t, g.ToggleColumn("body"))
	}
	_, ok := store.ResolveShare(first)
	assert.True(t, ok, "copied link should still resolve")
	assert.NotEqual(t, first, g.Location().Get(urlstate.KeyState), "odd toggles end with body hidden")

	require.NoError(t, g.ToggleColumn("body"))
	assert.Equal(t, first, g.Location().Get(urlstate.KeyState))

	reopened, _ := newGrid(t, Options{Store: store, Location: g.Location(), Limits: urlstate.Limits{MaxURLLength: 2000, MaxFiltersLength: 120}})
	assert.Equal(t, first, reopened.Location().Get(urlstate.KeyState))
}

func TestAddFilter_NumericValueRoundTripsThroughLocation(t *testing.T) {
	store := prefs.NewLocalStore(prefs.NewMemoryBackend(), "articles")
	g, _ := newGrid(t, Options{Store: store})

	require.NoError(t, g.AddFilter(state.ColumnFilter{Column: "views", Operator: "gte", Value: 5}))
	require.NoError(t, g.SetFilters(append(g.State().Filters, state.ColumnFilter{Column: "id", Operator: "in", Value: []int{1, 2}})))
	want := g.State().Filters

	reopened, _ := newGrid(t, Options{Store: store, Location: g.Location()})
	assert.Equal(t, want, reopened.State().Filters)

	token, err := store.CreateShare(g.State().Share())
	require.NoError(t, err)
	shared, ok := store.ResolveShare(token)
	require.True(t, ok)
	assert.Equal(t, want, shared.Filters)
}

func TestSetSearchDebounced_AppliesLastTerm(t *testing.T) {
	g, f := newGrid(t, Options{SearchDebounce: 20 * time.Millisecond})

	for _, term := range []string{"h", "he", "hello"} {
		require.NoError(t, g.SetSearchDebounced(term))
	}
	require.Eventually(t, func() bool { return g.State().Search == "hello" }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.url(0), "search=hello")
}

func TestDestroy_StopsEverything(t *testing.T) {
	g, f := newGrid(t, Options{SearchDebounce: 10 * time.Millisecond})
	require.NoError(t, g.SetSearchDebounced("late"))
	g.Destroy()
	g.Destroy()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, f.calls())
	assert.ErrorIs(t, g.Refresh(context.Background()), ErrDestroyed)
	assert.ErrorIs(t, g.SetPage(2), ErrDestroyed)
	_, err := g.FetchDetail(context.Background(), "1")
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestToggleGroup_ConvertsToExplicit(t *testing.T) {
	g, _ := newGrid(t, Options{DefaultViewMode: state.ViewGrouped, Grouping: &grouping.Engine{Enabled: true, Field: "translation_group_id"}})
	require.NoError(t, g.Refresh(context.Background()))

	require.NoError(t, g.ToggleGroup("g1"))
	st := g.State()
	assert.Equal(t, state.ExpandExplicit, st.ExpandMode)
	assert.Equal(t, []string{"g2"}, st.ExpandedGroups.Sorted())
	assert.Equal(t, `["g2"]`, g.Location().Get(urlstate.KeyExpandedGroups))

	require.NoError(t, g.CollapseAll())
	assert.False(t, g.Location().Has(urlstate.KeyExpandedGroups))
	for _, grp := range g.Groups() {
		assert.False(t, grp.Expanded)
	}
}

func TestSideChannels_DoNotMutateState(t *testing.T) {
	g, f := newGrid(t, Options{Columns: []string{}})
	before := g.State()

	rec, err := g.FetchDetail(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "articles", rec["resource"])

	schema, err := g.Schema(context.Background())
	require.NoError(t, err)
	tabs, err := g.Tabs(context.Background())
	require.NoError(t, err)
	assert.Len(t, tabs, 1)

	assert.Equal(t, before, g.State())
	assert.Equal(t, 0, f.calls())

	assert.True(t, g.ApplySchema(schema))
	assert.Equal(t, []string{"id", "title", "body"}, g.Columns())
	assert.False(t, g.ApplySchema(schema))
}

type fakeBulk struct {
	ids []string
	res crud.BulkResult
	err error
}

func (b *fakeBulk) Run(_ context.Context, _ string, ids []string) (crud.BulkResult, error) {
	b.ids = ids
	return b.res, b.err
}

func TestRunBulkAction_ReportsItemizedFailures(t *testing.T) {
	queue := notify.NewQueue(time.Hour, 10)
	bulk := &fakeBulk{res: crud.BulkResult{Processed: 1, Failed: 1, Items: []crud.BulkItem{{ID: "1", OK: true}, {ID: "2", Error: "locked"}}}}
	g, _ := newGrid(t, Options{Notifier: queue, Behaviors: behavior.Set{Bulk: bulk}})

	require.NoError(t, g.ToggleRow("2"))
	require.NoError(t, g.ToggleRow("1"))
	_, err := g.RunBulkAction(context.Background(), "publish")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, bulk.ids)
	assert.Empty(t, g.SelectedIDs())
	latest, ok := queue.Latest()
	require.True(t, ok)
	assert.Equal(t, notify.Warning, latest.Level)
	assert.Contains(t, latest.Message, "2: locked")

	bulk.err = errors.New("forbidden")
	require.NoError(t, g.ToggleRow("1"))
	_, err = g.RunBulkAction(context.Background(), "publish")
	assert.Error(t, err)
	latest, _ = queue.Latest()
	assert.Equal(t, notify.Error, latest.Level)
}

type fakeExport struct {
	req crud.ExportRequest
	out behavior.ExportOutcome
}

func (e *fakeExport) Export(_ context.Context, req crud.ExportRequest) (behavior.ExportOutcome, error) {
	e.req = req
	return e.out, nil
}

func TestExport_Scopes(t *testing.T) {
	queue := notify.NewQueue(time.Hour, 10)
	exp := &fakeExport{out: behavior.ExportOutcome{Status: behavior.ExportProcessing, Job: &crud.ExportJob{ID: "job-9"}}}
	g, _ := newGrid(t, Options{
		Notifier:  queue,
		Behaviors: behavior.Set{Export: exp},
		Location:  url.Values{"hiddenColumns": {`["body"]`}, "search": {"go"}, "page": {"2"}},
	})

	_, err := g.Export(context.Background(), "CSV", ScopeSelected)
	assert.Error(t, err)

	out, err := g.Export(context.Background(), "csv", ScopeQuery)
	require.NoError(t, err)
	assert.Equal(t, behavior.ExportProcessing, out.Status)
	assert.Equal(t, "csv", exp.req.Format)
	assert.Equal(t, []string{"id", "title"}, exp.req.Columns)
	require.NotNil(t, exp.req.Selection)
	assert.Equal(t, "query", exp.req.Selection.Mode)
	assert.Equal(t, "go", exp.req.Selection.Params["search"])
	assert.NotContains(t, exp.req.Selection.Params, "offset")

	latest, _ := queue.Latest()
	assert.Contains(t, latest.Message, "job-9")

	_, err = g.Export(context.Background(), "csv", "everything")
	assert.Error(t, err)
}

func TestReconcilePersisted_AppliesExternalChange(t *testing.T) {
	g, f := newGrid(t, Options{})
	p := state.PersistedState{Version: 1, HiddenColumns: []string{"title"}}

	require.NoError(t, g.ReconcilePersisted(p))
	assert.True(t, g.State().HiddenColumns.Has("title"))
	require.Eventually(t, func() bool { return f.calls() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, g.ReconcilePersisted(p))
	require.NoError(t, g.ReconcilePersisted(state.PersistedState{Version: 7}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.calls())
}

func TestPaginate(t *testing.T) {
	total := 60
	yes, no := true, false
	tests := []struct {
		name     string
		page     int
		snap     state.Snapshot
		wantNext bool
		wantPgs  int
	}{
		{"known total with more", 2, state.Snapshot{HasData: true, Total: &total}, true, 3},
		{"known total last page", 3, state.Snapshot{HasData: true, Total: &total}, false, 3},
		{"has_more false", 1, state.Snapshot{HasData: true, HasMore: &no}, false, 0},
		{"has_more true", 1, state.Snapshot{HasData: true, HasMore: &yes}, true, 0},
		{"unknown total full page", 1, state.Snapshot{HasData: true, Items: make([]crud.Record, 25)}, true, 0},
		{"unknown total short page", 1, state.Snapshot{HasData: true, Items: make([]crud.Record, 3)}, false, 0},
		{"no data yet", 1, state.Snapshot{}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Paginate(tt.page, 25, tt.snap)
			assert.Equal(t, tt.wantNext, info.HasNext)
			assert.Equal(t, tt.wantPgs, info.TotalPages)
			assert.Equal(t, tt.page > 1, info.HasPrev)
		})
	}
}
