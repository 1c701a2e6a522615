// Package urlstate encodes grid state into a shareable query string and reads
// it back.
package urlstate

import (
	"encoding/json"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// Grid-managed location keys.
const (
	KeySearch         = "search"
	KeyPage           = "page"
	KeyPerPage        = "perPage"
	KeyFilters        = "filters"
	KeySort           = "sort"
	KeyState          = "state"
	KeyHiddenColumns  = "hiddenColumns"
	KeyViewMode       = "view_mode"
	KeyExpandedGroups = "expanded_groups"
)

// ManagedKeys lists every key the grid owns so they can be cleared in one pass.
var ManagedKeys = []string{
	KeySearch,
	KeyPage,
	KeyPerPage,
	KeyFilters,
	KeySort,
	KeyState,
	KeyHiddenColumns,
	KeyViewMode,
	KeyExpandedGroups,
}

// Clear removes all grid-managed keys and leaves everything else alone.
func Clear(values url.Values) {
	for _, k := range ManagedKeys {
		values.Del(k)
	}
}

// ReadJSON decodes the JSON value under key into a T. Absent or malformed
// values return fallback.
func ReadJSON[T any](values url.Values, key string, fallback T) T {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return fallback
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fallback
	}
	return out
}

// WriteJSON stores v as JSON under key. Nil and empty values delete the key.
func WriteJSON(values url.Values, key string, v any) {
	if isEmpty(v) {
		values.Del(key)
		return
	}
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		values.Del(key)
		return
	}
	values.Set(key, string(raw))
}

// ReadString returns the raw value under key or fallback when absent.
func ReadString(values url.Values, key, fallback string) string {
	if !values.Has(key) {
		return fallback
	}
	return values.Get(key)
}

// WriteString stores s, deleting the key for an empty string.
func WriteString(values url.Values, key, s string) {
	if s == "" {
		values.Del(key)
		return
	}
	values.Set(key, s)
}

// ReadInt parses a positive integer under key, returning fallback otherwise.
func ReadInt(values url.Values, key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(values.Get(key)))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// WriteInt stores n, deleting the key when n equals omit or is not positive.
func WriteInt(values url.Values, key string, n, omit int) {
	if n <= 0 || n == omit {
		values.Del(key)
		return
	}
	values.Set(key, strconv.Itoa(n))
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
