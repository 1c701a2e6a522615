package urlstate

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/five82/gridder/internal/state"
)

// Sharer mints opaque tokens for share states that are too long to inline.
type Sharer interface {
	CreateShare(s state.ShareState) (string, error)
}

// Resolver turns a token back into its share state.
type Resolver interface {
	ResolveShare(token string) (state.ShareState, bool)
}

// Limits bounds inline encodings before a share token is used instead.
type Limits struct {
	MaxURLLength     int
	MaxFiltersLength int
}

// DefaultLimits keeps locations well under common proxy and browser caps.
var DefaultLimits = Limits{MaxURLLength: 2000, MaxFiltersLength: 1000}

// Defaults are the values left out of an encoded location.
type Defaults struct {
	PerPage  int
	ViewMode state.ViewMode
}

// Encode writes g into a copy of base. Keys not managed by the grid survive.
// When the filter encoding or the whole query exceeds lim, the state is stored
// through sharer and only the token is written. If no token can be minted the
// inline encoding is kept.
func Encode(base url.Values, g state.Grid, d Defaults, lim Limits, sharer Sharer) url.Values {
	values := cloneValues(base)
	Clear(values)

	WriteString(values, KeySearch, strings.TrimSpace(g.Search))
	WriteInt(values, KeyPage, g.Page, 1)
	WriteInt(values, KeyPerPage, g.PerPage, d.PerPage)
	WriteJSON(values, KeyFilters, g.Filters)
	WriteJSON(values, KeySort, g.Sort)
	WriteJSON(values, KeyHiddenColumns, g.HiddenColumns.Sorted())
	if g.ViewMode != d.ViewMode {
		WriteString(values, KeyViewMode, string(g.ViewMode))
	}
	if g.ExpandMode == state.ExpandExplicit {
		groups := g.ExpandedGroups.Sorted()
		if groups == nil {
			groups = []string{}
		}
		// An explicit empty list still means "explicit mode, nothing expanded".
		raw, _ := json.Marshal(groups)
		values.Set(KeyExpandedGroups, string(raw))
	}

	if sharer == nil || !exceeds(values, lim) {
		return values
	}
	token, err := sharer.CreateShare(g.Share())
	if err != nil || token == "" {
		return values
	}
	Clear(values)
	values.Set(KeyState, token)
	return values
}

func exceeds(values url.Values, lim Limits) bool {
	if lim.MaxFiltersLength > 0 && len(values.Get(KeyFilters)) > lim.MaxFiltersLength {
		return true
	}
	if lim.MaxURLLength > 0 && len(values.Encode()) > lim.MaxURLLength {
		return true
	}
	return false
}

// Overlay is the state found in a location. Nil fields were absent.
type Overlay struct {
	Share          *state.ShareState
	Search         *string
	Page           *int
	PerPage        *int
	Filters        []state.ColumnFilter
	Sort           []state.SortColumn
	HiddenColumns  []string
	ViewMode       *state.ViewMode
	ExpandedGroups []string
}

// Decode reads grid state from values. A share token is resolved first; keys
// present alongside it override the shared values. Malformed entries are
// dropped silently.
func Decode(values url.Values, resolver Resolver) Overlay {
	var o Overlay

	if token := strings.TrimSpace(ReadString(values, KeyState, "")); token != "" && resolver != nil {
		if s, ok := resolver.ResolveShare(token); ok && s.Version == state.StateVersion {
			o.Share = &s
		}
	}
	if values.Has(KeySearch) {
		s := values.Get(KeySearch)
		o.Search = &s
	}
	if n := ReadInt(values, KeyPage, 0); n > 0 {
		o.Page = &n
	}
	if n := ReadInt(values, KeyPerPage, 0); n > 0 {
		o.PerPage = &n
	}
	if filters := ReadJSON[[]state.ColumnFilter](values, KeyFilters, nil); filters != nil {
		o.Filters = cleanFilters(filters)
	}
	if sorts := ReadJSON[[]state.SortColumn](values, KeySort, nil); sorts != nil {
		o.Sort = cleanSort(sorts)
	}
	o.HiddenColumns = ReadJSON[[]string](values, KeyHiddenColumns, nil)
	if mode := state.ViewMode(ReadString(values, KeyViewMode, "")); mode.Valid() {
		o.ViewMode = &mode
	}
	o.ExpandedGroups = ReadJSON[[]string](values, KeyExpandedGroups, nil)
	return o
}

// Apply overlays o onto g.
func (o Overlay) Apply(g *state.Grid) {
	if o.Share != nil {
		g.ApplyShare(*o.Share)
	}
	if o.Search != nil {
		g.Search = *o.Search
	}
	if o.Page != nil {
		g.Page = *o.Page
	}
	if o.PerPage != nil {
		g.PerPage = *o.PerPage
	}
	if o.Filters != nil {
		g.Filters = append([]state.ColumnFilter(nil), o.Filters...)
	}
	if o.Sort != nil {
		g.Sort = append([]state.SortColumn(nil), o.Sort...)
	}
	if o.HiddenColumns != nil {
		g.HiddenColumns = state.NewSet(o.HiddenColumns...)
	}
	if o.ViewMode != nil {
		g.ViewMode = *o.ViewMode
	}
	if o.ExpandedGroups != nil {
		g.ExpandMode = state.ExpandExplicit
		g.ExpandedGroups = state.NewSet(o.ExpandedGroups...)
	}
}

func cleanFilters(in []state.ColumnFilter) []state.ColumnFilter {
	out := make([]state.ColumnFilter, 0, len(in))
	for _, f := range in {
		f.Column = strings.TrimSpace(f.Column)
		if f.Column == "" {
			continue
		}
		f.Operator = strings.ToLower(strings.TrimSpace(f.Operator))
		if f.Operator == "" {
			f.Operator = "eq"
		}
		out = append(out, f)
	}
	return out
}

func cleanSort(in []state.SortColumn) []state.SortColumn {
	out := make([]state.SortColumn, 0, len(in))
	for _, s := range in {
		s.Field = strings.TrimSpace(s.Field)
		if s.Field == "" {
			continue
		}
		if strings.EqualFold(s.Direction, state.SortDesc) {
			s.Direction = state.SortDesc
		} else {
			s.Direction = state.SortAsc
		}
		out = append(out, s)
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	dup := make(url.Values, len(v))
	for k, vals := range v {
		dup[k] = append([]string(nil), vals...)
	}
	return dup
}
