// Package grouping reshapes flat rows into grouped and matrix views and tracks
// whether the server honors the grouped-pagination contract.
package grouping

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/five82/gridder/internal/behavior"
	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/state"
)

// ParamGroupBy is the query parameter naming the grouping field.
const ParamGroupBy = "group_by"

var unsupportedStatus = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusNotFound:            true,
	http.StatusMethodNotAllowed:    true,
	http.StatusUnprocessableEntity: true,
	http.StatusNotImplemented:      true,
}

// Engine decides when grouping is active and remembers a fallback to flat
// mode. Once fallen back it stays flat until Reset.
type Engine struct {
	Enabled    bool
	Field      string
	PivotField string
	// RequireEnvelope treats a grouped request answered without a groups
	// envelope as unsupported. When false rows are grouped locally instead.
	RequireEnvelope bool

	mu     sync.Mutex
	reason string
}

// Active reports whether mode should be served grouped.
func (e *Engine) Active(mode state.ViewMode) bool {
	if e == nil || !e.Enabled || e.Field == "" {
		return false
	}
	if mode != state.ViewGrouped && mode != state.ViewMatrix {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason == ""
}

// Params returns the grouping fragment for mode.
func (e *Engine) Params(mode state.ViewMode) behavior.Params {
	if !e.Active(mode) {
		return nil
	}
	return behavior.Params{ParamGroupBy: e.Field}
}

// Check inspects the outcome of a grouped request. It returns an error
// wrapping crud.ErrGroupedUnsupported when the server rejected the contract or
// answered with a body that could not be decoded; transport failures and other
// statuses are not contract failures.
func (e *Engine) Check(err error, page *crud.Page) error {
	if err != nil {
		if status := crud.StatusCode(err); unsupportedStatus[status] {
			return fmt.Errorf("%w: server answered HTTP %d", crud.ErrGroupedUnsupported, status)
		}
		if errors.Is(err, crud.ErrMalformedResponse) {
			return fmt.Errorf("%w: %v", crud.ErrGroupedUnsupported, err)
		}
		return nil
	}
	if page != nil && !page.Grouped && e.RequireEnvelope {
		return fmt.Errorf("%w: response has no groups envelope", crud.ErrGroupedUnsupported)
	}
	return nil
}

// Fallback switches the session to flat mode.
func (e *Engine) Fallback(reason string) {
	if reason == "" {
		reason = "grouped view unsupported"
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reason = reason
}

// FallbackReason returns the recorded reason and whether a fallback happened.
func (e *Engine) FallbackReason() (string, bool) {
	if e == nil {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason, e.reason != ""
}

// Reset clears a fallback. Only an explicit view-mode change by the user
// should call it.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reason = ""
}
