package ui

import (
	"fmt"
	"strings"

	"github.com/five82/gridder/internal/state"
)

var operatorAliases = map[string]string{
	"=":  "eq",
	"==": "eq",
	"!=": "ne",
	">":  "gt",
	">=": "gte",
	"<":  "lt",
	"<=": "lte",
	"~":  "ilike",
}

var knownOperators = map[string]bool{
	"eq": true, "ne": true, "gt": true, "gte": true, "lt": true, "lte": true,
	"like": true, "ilike": true, "in": true, "nin": true, "contains": true,
}

// parseFilter reads "column op value" or "column value" (equality). A value
// with commas becomes a list, which the filter behavior sends as one
// multi-value parameter.
func parseFilter(input string, columns []string) (state.ColumnFilter, error) {
	fields := strings.Fields(input)
	if len(fields) < 2 {
		return state.ColumnFilter{}, fmt.Errorf("filter needs a column and a value")
	}
	column := fields[0]
	if len(columns) > 0 && !contains(columns, column) {
		return state.ColumnFilter{}, fmt.Errorf("unknown column %q", column)
	}

	op := "eq"
	rest := fields[1:]
	candidate := strings.ToLower(rest[0])
	if alias, ok := operatorAliases[candidate]; ok {
		candidate = alias
	}
	if knownOperators[candidate] && len(rest) > 1 {
		op = candidate
		rest = rest[1:]
	}

	raw := strings.Join(rest, " ")
	if !strings.Contains(raw, ",") {
		return state.ColumnFilter{Column: column, Operator: op, Value: raw}, nil
	}
	var values []any
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return state.ColumnFilter{}, fmt.Errorf("filter value is empty")
	}
	if op == "eq" && len(values) > 1 {
		op = "in"
	}
	return state.ColumnFilter{Column: column, Operator: op, Value: values}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// describeFilter renders a filter as the user would type it.
func describeFilter(f state.ColumnFilter) string {
	var value string
	switch v := f.Value.(type) {
	case []any:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = fmt.Sprint(p)
		}
		value = strings.Join(parts, ",")
	default:
		value = fmt.Sprint(v)
	}
	op := f.Operator
	if op == "" {
		op = "eq"
	}
	return fmt.Sprintf("%s %s %s", f.Column, op, value)
}
