// Package behavior holds the pluggable strategies that turn grid state into
// query parameters and dispatch user actions to the API. The defaults target
// the go-crud query convention; a different backend supplies its own
// implementations of the same interfaces.
package behavior

import (
	"context"

	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/state"
)

// Params is a query-parameter fragment.
type Params map[string]string

// Merge copies other into p; keys in other win.
func (p Params) Merge(other Params) Params {
	if p == nil {
		p = Params{}
	}
	for k, v := range other {
		p[k] = v
	}
	return p
}

// SearchBehavior builds the free-text search fragment.
type SearchBehavior interface {
	SearchParams(term string) Params
}

// FilterBehavior builds the column filter fragment.
type FilterBehavior interface {
	FilterParams(filters []state.ColumnFilter) Params
}

// SortBehavior builds the ordering fragment and decides how a header
// activation changes the sort list.
type SortBehavior interface {
	SortParams(sort []state.SortColumn) Params
	Toggle(current []state.SortColumn, field string, multi bool) []state.SortColumn
}

// PaginationBehavior builds the page window fragment.
type PaginationBehavior interface {
	PageParams(page, perPage int) Params
}

// ColumnVisibilityBehavior builds the projection fragment from the declared
// and visible column lists.
type ColumnVisibilityBehavior interface {
	ColumnParams(declared, visible []string) Params
}

// ExportBehavior submits an export and follows it to an outcome.
type ExportBehavior interface {
	Export(ctx context.Context, req crud.ExportRequest) (ExportOutcome, error)
}

// BulkActionBehavior runs a named action over a set of row ids.
type BulkActionBehavior interface {
	Run(ctx context.Context, action string, ids []string) (crud.BulkResult, error)
}

// Set is the full behavior bundle a grid is built with.
type Set struct {
	Search     SearchBehavior
	Filter     FilterBehavior
	Sort       SortBehavior
	Pagination PaginationBehavior
	Columns    ColumnVisibilityBehavior
	Export     ExportBehavior
	Bulk       BulkActionBehavior
}

// WithDefaults fills every nil query behavior with the go-crud default.
// Export and Bulk need a client and are left as given.
func (s Set) WithDefaults() Set {
	if s.Search == nil {
		s.Search = Search{}
	}
	if s.Filter == nil {
		s.Filter = Filter{}
	}
	if s.Sort == nil {
		s.Sort = Sort{}
	}
	if s.Pagination == nil {
		s.Pagination = OffsetPagination{}
	}
	if s.Columns == nil {
		s.Columns = Columns{}
	}
	return s
}

// QueryParams composes the fragments of every query behavior for g. Later
// fragments win on a shared key: a column filter that yields the same key as
// the search fragment (title__ilike for a search field) replaces the search
// term for that field.
func (s Set) QueryParams(g state.Grid, declared []string) Params {
	s = s.WithDefaults()
	p := Params{}
	p = p.Merge(s.Search.SearchParams(g.Search))
	p = p.Merge(s.Filter.FilterParams(g.Filters))
	p = p.Merge(s.Sort.SortParams(g.Sort))
	p = p.Merge(s.Pagination.PageParams(g.Page, g.PerPage))
	p = p.Merge(s.Columns.ColumnParams(declared, g.VisibleColumns(declared)))
	return p
}
