package crud

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is one row as decoded from the API.
type Record map[string]any

// ID returns the record identifier under field as a string.
func (r Record) ID(field string) string {
	if field == "" {
		field = "id"
	}
	return Stringify(r[field])
}

// String returns the value of field formatted for display and query use.
func (r Record) String(field string) string {
	return Stringify(r[field])
}

// Stringify formats a decoded JSON scalar. Nil becomes the empty string.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}

// Group is one entry of the grouped-pagination envelope.
type Group struct {
	ID      string         `json:"id"`
	Label   string         `json:"label,omitempty"`
	Count   int            `json:"count"`
	RowIDs  []string       `json:"row_ids"`
	Summary map[string]any `json:"summary,omitempty"`
}

// UnmarshalJSON accepts numeric or string ids, as integer-keyed APIs send
// them, and stores them in the same string form as Record.ID.
func (g *Group) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      any            `json:"id"`
		Label   any            `json:"label"`
		Count   float64        `json:"count"`
		RowIDs  []any          `json:"row_ids"`
		Summary map[string]any `json:"summary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = Group{
		ID:      Stringify(raw.ID),
		Label:   Stringify(raw.Label),
		Count:   int(raw.Count),
		Summary: raw.Summary,
	}
	if raw.RowIDs != nil {
		g.RowIDs = make([]string, 0, len(raw.RowIDs))
		for _, id := range raw.RowIDs {
			if s := Stringify(id); s != "" {
				g.RowIDs = append(g.RowIDs, s)
			}
		}
	}
	return nil
}

// Page is the uniform list result handed downstream. Total is nil when the
// server did not report one.
type Page struct {
	Items      []Record
	Total      *int
	HasMore    *bool
	NextOffset *int
	Groups     []Group
	Grouped    bool // the payload carried a groups envelope
}

// Field describes one column of a resource schema.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type,omitempty"`
	Sortable bool   `json:"sortable,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// Schema is the resource description served next to the list endpoint.
type Schema struct {
	Resource string  `json:"resource"`
	IDField  string  `json:"id_field,omitempty"`
	Fields   []Field `json:"fields"`
}

// Tab groups schema fields for edit panels.
type Tab struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	Fields []string `json:"fields"`
}

// Selection scopes an export.
type Selection struct {
	Mode   string            `json:"mode"` // all, ids, query
	IDs    []string          `json:"ids,omitempty"`
	Query  string            `json:"query,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// ExportRequest is the body posted to the export endpoint.
type ExportRequest struct {
	Format    string     `json:"format"`
	Delivery  string     `json:"delivery,omitempty"`
	Selection *Selection `json:"selection,omitempty"`
	Columns   []string   `json:"columns,omitempty"`
}

// ExportJob is the asynchronous job handle and its status payload.
type ExportJob struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	DownloadURL string `json:"download_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j ExportJob) Terminal() bool {
	switch strings.ToLower(j.Status) {
	case "completed", "complete", "done", "failed", "error", "cancelled", "canceled":
		return true
	}
	return false
}

// Failed reports whether the job ended unsuccessfully.
func (j ExportJob) Failed() bool {
	switch strings.ToLower(j.Status) {
	case "failed", "error", "cancelled", "canceled":
		return true
	}
	return false
}

// ExportResult is either an inline file (sync) or a job handle (async).
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
	Job         *ExportJob
}

// BulkRequest is the body posted to a bulk action endpoint.
type BulkRequest struct {
	IDs []string `json:"ids"`
}

// BulkItem is one itemized result of a bulk action.
type BulkItem struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BulkResult is the bulk action response. Items is empty when the backend
// does not itemize.
type BulkResult struct {
	Processed int        `json:"processed"`
	Failed    int        `json:"failed"`
	Items     []BulkItem `json:"items,omitempty"`
	Message   string     `json:"message,omitempty"`
}
