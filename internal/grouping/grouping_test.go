package grouping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/gridder/internal/behavior"
	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/state"
)

func newEngine() *Engine {
	return &Engine{Enabled: true, Field: "translation_group_id", PivotField: "locale", RequireEnvelope: true}
}

func TestEngine_ParamsByMode(t *testing.T) {
	e := newEngine()
	assert.Equal(t, behavior.Params{"group_by": "translation_group_id"}, e.Params(state.ViewGrouped))
	assert.Equal(t, behavior.Params{"group_by": "translation_group_id"}, e.Params(state.ViewMatrix))
	assert.Nil(t, e.Params(state.ViewFlat))

	disabled := &Engine{Field: "translation_group_id"}
	assert.Nil(t, disabled.Params(state.ViewGrouped))
	assert.False(t, (*Engine)(nil).Active(state.ViewGrouped))
}

func TestEngine_CheckDetectsUnsupportedContract(t *testing.T) {
	e := newEngine()
	for _, status := range []int{400, 404, 405, 422, 501} {
		err := e.Check(&crud.APIError{Status: status, Message: "nope"}, nil)
		require.Error(t, err, "status %d", status)
		assert.ErrorIs(t, err, crud.ErrGroupedUnsupported)
	}

	assert.NoError(t, e.Check(&crud.APIError{Status: 500}, nil), "server errors are not contract failures")
	assert.NoError(t, e.Check(errors.New("connection refused"), nil))
	assert.NoError(t, e.Check(nil, &crud.Page{Grouped: true}))
	assert.ErrorIs(t, e.Check(nil, &crud.Page{}), crud.ErrGroupedUnsupported)

	_, decodeErr := crud.NormalizePage([]byte(`{"items":[],"groups":[{"id":"a","row_ids":{}}]}`))
	require.Error(t, decodeErr)
	assert.ErrorIs(t, e.Check(decodeErr, nil), crud.ErrGroupedUnsupported, "undecodable grouped body")

	lenient := &Engine{Enabled: true, Field: "g"}
	assert.NoError(t, lenient.Check(nil, &crud.Page{}))
}

func TestEngine_FallbackIsStickyUntilReset(t *testing.T) {
	e := newEngine()
	e.Fallback("server answered HTTP 501")

	assert.False(t, e.Active(state.ViewGrouped))
	assert.Nil(t, e.Params(state.ViewGrouped))
	reason, ok := e.FallbackReason()
	assert.True(t, ok)
	assert.Contains(t, reason, "501")

	e.Reset()
	assert.True(t, e.Active(state.ViewGrouped))
}

func rows() []crud.Record {
	return []crud.Record{
		{"id": "1", "translation_group_id": "g1", "locale": "en"},
		{"id": "2", "translation_group_id": "g2", "locale": "en"},
		{"id": "3", "translation_group_id": "g1", "locale": "fr"},
		{"id": "4", "locale": "de"},
	}
}

func TestBuild_ClientSide(t *testing.T) {
	g := state.Default(25, state.ViewGrouped)
	groups := Build(rows(), nil, "translation_group_id", "id", g)

	require.Len(t, groups, 3)
	assert.Equal(t, []string{"g1", "g2", ""}, GroupIDs(groups))
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, "(none)", groups[2].Label)
	for _, grp := range groups {
		assert.True(t, grp.Expanded)
	}
}

func TestBuild_FromEnvelope(t *testing.T) {
	env := []crud.Group{
		{ID: "g2", Label: "Second", Count: 5, RowIDs: []string{"2"}},
		{ID: "g1", RowIDs: []string{"3", "1", "missing"}},
	}
	g := state.Default(25, state.ViewGrouped)
	g.ExpandMode = state.ExpandExplicit
	g.ExpandedGroups = state.NewSet("g1")

	groups := Build(rows(), env, "translation_group_id", "id", g)
	require.Len(t, groups, 3)

	assert.Equal(t, "Second", groups[0].Label)
	assert.Equal(t, 5, groups[0].Count, "server count wins")
	assert.False(t, groups[0].Expanded)

	assert.Equal(t, "g1", groups[1].Label)
	assert.Equal(t, 2, groups[1].Count)
	assert.Equal(t, "3", groups[1].Rows[0].ID("id"))
	assert.True(t, groups[1].Expanded)

	assert.Equal(t, "", groups[2].ID)
	assert.Equal(t, "4", groups[2].Rows[0].ID("id"))
}

func TestPivot(t *testing.T) {
	g := state.Default(25, state.ViewMatrix)
	m := Pivot(Build(rows(), nil, "translation_group_id", "id", g), "locale")

	assert.Equal(t, []string{"en", "fr", "de"}, m.Columns)
	require.Len(t, m.Rows, 3)
	assert.Equal(t, "3", m.Rows[0].Cells["fr"].ID("id"))
	_, ok := m.Rows[1].Cells["fr"]
	assert.False(t, ok)
}

func TestToggle_OnlyTouchesOneGroup(t *testing.T) {
	g := state.Default(25, state.ViewGrouped)
	g.ExpandMode = state.ExpandExplicit
	g.ExpandedGroups = state.NewSet("a", "b")

	Toggle(&g, "b", []string{"a", "b", "c"})
	assert.Equal(t, []string{"a"}, g.ExpandedGroups.Sorted())
	Toggle(&g, "c", nil)
	assert.Equal(t, []string{"a", "c"}, g.ExpandedGroups.Sorted())
	assert.Equal(t, state.ExpandExplicit, g.ExpandMode)
}

func TestToggle_FromBlanketPolicies(t *testing.T) {
	g := state.Default(25, state.ViewGrouped)
	Toggle(&g, "b", []string{"a", "b", "c"})
	assert.Equal(t, state.ExpandExplicit, g.ExpandMode)
	assert.Equal(t, []string{"a", "c"}, g.ExpandedGroups.Sorted())

	CollapseAll(&g)
	assert.Equal(t, state.ExpandNone, g.ExpandMode)
	assert.Empty(t, g.ExpandedGroups)
	Toggle(&g, "b", []string{"a", "b", "c"})
	assert.Equal(t, []string{"b"}, g.ExpandedGroups.Sorted())

	ExpandAll(&g)
	assert.Equal(t, state.ExpandAll, g.ExpandMode)
	assert.Empty(t, g.ExpandedGroups)
}
