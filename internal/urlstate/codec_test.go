package urlstate

import (
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/gridder/internal/state"
)

func TestReadJSON_FallbackOnMissingOrMalformed(t *testing.T) {
	values := url.Values{}
	values.Set("bad", "{nope")
	values.Set("good", `["a","b"]`)

	assert.Equal(t, []string{"x"}, ReadJSON(values, "missing", []string{"x"}))
	assert.Equal(t, []string{"x"}, ReadJSON(values, "bad", []string{"x"}))
	assert.Equal(t, []string{"a", "b"}, ReadJSON[[]string](values, "good", nil))
}

func TestWriteJSON_DeletesEmptyValues(t *testing.T) {
	values := url.Values{}
	values.Set("k", "old")

	for _, v := range []any{nil, "", []string{}, map[string]int{}, (*int)(nil)} {
		values.Set("k", "old")
		WriteJSON(values, "k", v)
		assert.False(t, values.Has("k"), "WriteJSON(%#v) should delete the key", v)
	}

	WriteJSON(values, "k", []int{1})
	assert.Equal(t, "[1]", values.Get("k"))
}

func TestWriteStringAndInt(t *testing.T) {
	values := url.Values{}
	WriteString(values, KeySearch, "")
	assert.False(t, values.Has(KeySearch))
	assert.Equal(t, "none", ReadString(values, KeySearch, "none"))
	WriteString(values, KeySearch, "q")
	assert.Equal(t, "q", ReadString(values, KeySearch, "none"))
	values.Set(KeyViewMode, "")
	assert.Equal(t, "", ReadString(values, KeyViewMode, "flat"), "present but empty is not absent")

	WriteInt(values, KeyPage, 1, 1)
	assert.False(t, values.Has(KeyPage))
	WriteInt(values, KeyPage, 4, 1)
	assert.Equal(t, 4, ReadInt(values, KeyPage, 1))

	values.Set(KeyPerPage, "-3")
	assert.Equal(t, 25, ReadInt(values, KeyPerPage, 25))
}

func TestClear_LeavesForeignKeys(t *testing.T) {
	values := url.Values{}
	for _, k := range ManagedKeys {
		values.Set(k, "x")
	}
	values.Set("tab", "content")

	Clear(values)
	assert.Equal(t, url.Values{"tab": {"content"}}, values)
}

type memorySharer struct {
	entries map[string]state.ShareState
	fail    bool
}

func (m *memorySharer) CreateShare(s state.ShareState) (string, error) {
	if m.fail {
		return "", fmt.Errorf("store unavailable")
	}
	if m.entries == nil {
		m.entries = map[string]state.ShareState{}
	}
	token := fmt.Sprintf("tok-%d", len(m.entries)+1)
	m.entries[token] = s
	return token, nil
}

func (m *memorySharer) ResolveShare(token string) (state.ShareState, bool) {
	s, ok := m.entries[token]
	return s, ok
}

func sampleGrid() state.Grid {
	g := state.Default(25, state.ViewFlat)
	g.Search = "launch"
	g.Page = 3
	g.Filters = []state.ColumnFilter{{Column: "status", Operator: "eq", Value: "draft"}}
	g.Sort = []state.SortColumn{{Field: "title", Direction: state.SortDesc}}
	g.HiddenColumns = state.NewSet("body")
	return g
}

func TestEncodeDecode_Inline(t *testing.T) {
	g := sampleGrid()
	g.ViewMode = state.ViewGrouped
	g.ExpandMode = state.ExpandExplicit
	g.ExpandedGroups = state.NewSet("g1")

	base := url.Values{"tab": {"content"}}
	values := Encode(base, g, Defaults{PerPage: 25, ViewMode: state.ViewFlat}, DefaultLimits, nil)

	assert.Equal(t, "content", values.Get("tab"))
	assert.False(t, values.Has(KeyPerPage), "default perPage should be omitted")
	assert.False(t, values.Has(KeyState))
	assert.Equal(t, "grouped", values.Get(KeyViewMode))
	assert.False(t, base.Has(KeySearch), "Encode must not mutate base")

	restored := state.Default(25, state.ViewFlat)
	Decode(values, nil).Apply(&restored)

	assert.Equal(t, g.Search, restored.Search)
	assert.Equal(t, g.Page, restored.Page)
	assert.Equal(t, g.Filters, restored.Filters)
	assert.Equal(t, g.Sort, restored.Sort)
	assert.Equal(t, g.HiddenColumns, restored.HiddenColumns)
	assert.Equal(t, state.ViewGrouped, restored.ViewMode)
	assert.Equal(t, state.ExpandExplicit, restored.ExpandMode)
	assert.True(t, restored.ExpandedGroups.Has("g1"))
}

func TestEncode_LongFiltersUseShareToken(t *testing.T) {
	g := sampleGrid()
	for i := 0; i < 40; i++ {
		g.Filters = append(g.Filters, state.ColumnFilter{Column: "tag", Operator: "eq", Value: strings.Repeat("v", 20)})
	}
	sharer := &memorySharer{}

	values := Encode(nil, g, Defaults{PerPage: 25}, Limits{MaxURLLength: 4000, MaxFiltersLength: 200}, sharer)

	require.True(t, values.Has(KeyState))
	assert.False(t, values.Has(KeyFilters), "raw filters must not be inlined")
	assert.False(t, values.Has(KeySearch))

	restored := state.Default(25, state.ViewFlat)
	o := Decode(values, sharer)
	require.NotNil(t, o.Share)
	o.Apply(&restored)
	assert.Equal(t, g.Filters, restored.Filters)
	assert.Equal(t, g.Search, restored.Search)
	assert.True(t, restored.HiddenColumns.Has("body"))
}

func TestEncode_TotalLengthGuard(t *testing.T) {
	g := sampleGrid()
	g.Search = strings.Repeat("s", 300)
	sharer := &memorySharer{}

	values := Encode(nil, g, Defaults{PerPage: 25}, Limits{MaxURLLength: 200}, sharer)
	assert.True(t, values.Has(KeyState))
}

func TestEncode_KeepsInlineWhenSharerFails(t *testing.T) {
	g := sampleGrid()
	g.Search = strings.Repeat("s", 300)

	values := Encode(nil, g, Defaults{PerPage: 25}, Limits{MaxURLLength: 200}, &memorySharer{fail: true})
	assert.False(t, values.Has(KeyState))
	assert.Equal(t, g.Search, values.Get(KeySearch))
}

func TestDecode_ExplicitKeysOverrideShare(t *testing.T) {
	sharer := &memorySharer{}
	token, err := sharer.CreateShare(sampleGrid().Share())
	require.NoError(t, err)

	values := url.Values{}
	values.Set(KeyState, token)
	values.Set(KeySearch, "override")

	g := state.Default(25, state.ViewFlat)
	Decode(values, sharer).Apply(&g)
	assert.Equal(t, "override", g.Search)
	assert.Equal(t, 3, g.Page)
}

func TestDecode_DiscardsMalformedState(t *testing.T) {
	values := url.Values{}
	values.Set(KeyFilters, `{"column":`)
	values.Set(KeySort, `[{"field":"","direction":"asc"},{"field":"title","direction":"DESC"}]`)
	values.Set(KeyViewMode, "sideways")
	values.Set(KeyState, "unknown-token")

	o := Decode(values, &memorySharer{})
	assert.Nil(t, o.Share)
	assert.Nil(t, o.Filters)
	assert.Nil(t, o.ViewMode)
	assert.Equal(t, []state.SortColumn{{Field: "title", Direction: state.SortDesc}}, o.Sort)
}

func TestDecode_EmptyLocation(t *testing.T) {
	assert.Equal(t, Overlay{}, Decode(url.Values{"tab": {"x"}}, nil))
}
