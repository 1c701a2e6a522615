package behavior

import (
	"strconv"
	"strings"

	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/state"
)

// Search fans a term out to a case-insensitive contains match on each field,
// naming the OR group with _or. With no fields the raw term is sent as search.
type Search struct {
	Fields []string
}

func (s Search) SearchParams(term string) Params {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	if len(s.Fields) == 0 {
		return Params{"search": term}
	}
	p := Params{}
	for _, f := range s.Fields {
		p[f+"__ilike"] = "%" + term + "%"
	}
	if len(s.Fields) > 1 {
		p["_or"] = strings.Join(s.Fields, ",")
	}
	return p
}

// Filter encodes filters as field=value for eq and field__op=value otherwise.
// Several eq entries on one field collapse to field__in; several entries of
// another operator are comma-joined under field__op. Entries on the same
// field are ORed and different fields are ANDed. The server is trusted to
// apply that convention; nothing here validates it.
type Filter struct{}

func (Filter) FilterParams(filters []state.ColumnFilter) Params {
	type bucket struct {
		column, op string
		values     []string
	}
	var order []string
	buckets := map[string]*bucket{}

	for _, f := range filters {
		column := strings.TrimSpace(f.Column)
		if column == "" {
			continue
		}
		values := filterValues(f.Value)
		if len(values) == 0 {
			continue
		}
		op := strings.ToLower(strings.TrimSpace(f.Operator))
		if op == "" {
			op = "eq"
		}
		id := column + "\x00" + op
		b, ok := buckets[id]
		if !ok {
			b = &bucket{column: column, op: op}
			buckets[id] = b
			order = append(order, id)
		}
		b.values = append(b.values, values...)
	}

	if len(order) == 0 {
		return nil
	}
	p := Params{}
	for _, id := range order {
		b := buckets[id]
		key := b.column + "__" + b.op
		if b.op == "eq" {
			key = b.column
			if len(b.values) > 1 {
				key = b.column + "__in"
			}
		}
		if existing, ok := p[key]; ok {
			p[key] = existing + "," + strings.Join(b.values, ",")
			continue
		}
		p[key] = strings.Join(b.values, ",")
	}
	return p
}

// filterValues flattens a filter value into its non-empty string parts.
func filterValues(v any) []string {
	switch typed := v.(type) {
	case nil:
		return nil
	case []any:
		var out []string
		for _, item := range typed {
			out = append(out, filterValues(item)...)
		}
		return out
	case []string:
		var out []string
		for _, item := range typed {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	s := strings.TrimSpace(crud.Stringify(v))
	if s == "" {
		return nil
	}
	return []string{s}
}

// Sort emits order=field dir,field dir with the primary key first.
type Sort struct{}

func (Sort) SortParams(sort []state.SortColumn) Params {
	parts := make([]string, 0, len(sort))
	for _, s := range sort {
		field := strings.TrimSpace(s.Field)
		if field == "" {
			continue
		}
		dir := state.SortAsc
		if strings.EqualFold(s.Direction, state.SortDesc) {
			dir = state.SortDesc
		}
		parts = append(parts, field+" "+dir)
	}
	if len(parts) == 0 {
		return nil
	}
	return Params{"order": strings.Join(parts, ",")}
}

// Toggle cycles field through asc, desc and removed. Without multi the result
// holds at most that one field.
func (Sort) Toggle(current []state.SortColumn, field string, multi bool) []state.SortColumn {
	field = strings.TrimSpace(field)
	if field == "" {
		return append([]state.SortColumn(nil), current...)
	}
	idx := -1
	for i, s := range current {
		if s.Field == field {
			idx = i
			break
		}
	}

	var next *state.SortColumn
	switch {
	case idx < 0:
		next = &state.SortColumn{Field: field, Direction: state.SortAsc}
	case current[idx].Direction == state.SortAsc:
		next = &state.SortColumn{Field: field, Direction: state.SortDesc}
	}

	if !multi {
		if next == nil {
			return []state.SortColumn{}
		}
		return []state.SortColumn{*next}
	}

	out := make([]state.SortColumn, 0, len(current)+1)
	for i, s := range current {
		if i == idx {
			if next != nil {
				out = append(out, *next)
			}
			continue
		}
		out = append(out, s)
	}
	if idx < 0 {
		out = append(out, *next)
	}
	return out
}

// OffsetPagination emits limit and offset.
type OffsetPagination struct{}

func (OffsetPagination) PageParams(page, perPage int) Params {
	if perPage <= 0 {
		return nil
	}
	if page < 1 {
		page = 1
	}
	return Params{
		"limit":  strconv.Itoa(perPage),
		"offset": strconv.Itoa((page - 1) * perPage),
	}
}

// PagePagination emits page and perPage for APIs that number pages.
type PagePagination struct{}

func (PagePagination) PageParams(page, perPage int) Params {
	if perPage <= 0 {
		return nil
	}
	if page < 1 {
		page = 1
	}
	return Params{
		"page":    strconv.Itoa(page),
		"perPage": strconv.Itoa(perPage),
	}
}

// Columns requests only the visible columns once any declared one is hidden.
type Columns struct {
	Param string // defaults to "fields"
}

func (c Columns) ColumnParams(declared, visible []string) Params {
	if len(declared) == 0 || len(visible) >= len(declared) {
		return nil
	}
	key := c.Param
	if key == "" {
		key = "fields"
	}
	return Params{key: strings.Join(visible, ",")}
}
