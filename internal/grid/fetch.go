package grid

import (
	"context"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/notify"
	"github.com/five82/gridder/internal/state"
)

// ErrSuperseded is returned by Refresh when a newer refresh started before
// this one finished. Its result was discarded.
var ErrSuperseded = errors.New("grid: refresh superseded")

// BuildAPIURL composes the list URL for the current state. It is
// deterministic: the same state always yields the same string.
func (g *Grid) BuildAPIURL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buildAPIURLLocked()
}

func (g *Grid) buildAPIURLLocked() string {
	params := g.opts.Behaviors.QueryParams(g.st, g.columns)
	params = params.Merge(g.engine.Params(g.st.ViewMode))

	u, err := url.Parse(g.opts.Endpoint)
	if err != nil {
		u = &url.URL{Path: g.opts.Endpoint}
	}
	values := u.Query()
	for k, v := range params {
		values.Set(k, v)
	}
	u.RawQuery = values.Encode()
	return u.String()
}

// Refresh fetches the current page. Only the most recent call applies its
// result: starting a refresh cancels the one in flight, and a result that
// arrives after a newer call started is dropped with ErrSuperseded.
func (g *Grid) Refresh(ctx context.Context) error {
	g.mu.Lock()
	if g.destroyed {
		g.mu.Unlock()
		return ErrDestroyed
	}
	g.gen++
	gen := g.gen
	if g.cancel != nil {
		g.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	stopLife := context.AfterFunc(g.life, cancel)
	g.cancel = cancel
	rawURL := g.buildAPIURLLocked()
	grouped := g.engine.Active(g.st.ViewMode)
	g.results.Begin(gen)
	g.mu.Unlock()

	defer stopLife()
	defer cancel()

	g.logger.Debug("refresh", zap.Uint64("generation", gen), zap.String("url", rawURL))
	page, err := g.opts.Fetcher.List(reqCtx, rawURL)

	g.mu.Lock()
	if gen != g.gen || g.destroyed {
		g.mu.Unlock()
		return ErrSuperseded
	}

	if grouped {
		var pagePtr *crud.Page
		if err == nil {
			pagePtr = &page
		}
		if cerr := g.engine.Check(err, pagePtr); cerr != nil {
			g.engine.Fallback(cerr.Error())
			if g.fallbackFrom == "" {
				g.fallbackFrom = g.st.ViewMode
			}
			g.st.ViewMode = state.ViewFlat
			g.mu.Unlock()

			g.logger.Warn("grouped view unsupported, falling back to flat", zap.Error(cerr))
			notify.Notifyf(g.notifier, notify.Warning, "Grouped view unavailable (%v); showing flat rows", cerr)
			g.persist()
			return g.Refresh(ctx)
		}
	}

	if err != nil {
		wasOnline := g.results.Snapshot().ConsecutiveFailures == 0
		g.results.Update(gen, nil, err)
		g.mu.Unlock()
		if errors.Is(err, context.Canceled) {
			return err
		}
		g.logger.Warn("list request failed", zap.String("url", rawURL), zap.Error(err))
		if wasOnline {
			notify.Notifyf(g.notifier, notify.Error, "Load failed: %v", err)
		}
		return err
	}

	g.reconcileSelectionLocked(page.Items)
	g.results.Update(gen, &page, nil)
	clamp := g.clampPageLocked(page)
	g.mu.Unlock()

	if clamp {
		g.persist()
		return g.Refresh(ctx)
	}
	return nil
}

// reconcileSelectionLocked keeps only selected ids present in items.
func (g *Grid) reconcileSelectionLocked(items []crud.Record) {
	if len(g.st.SelectedRows) == 0 {
		return
	}
	present := make(map[string]bool, len(items))
	for _, r := range items {
		present[r.ID(g.opts.IDField)] = true
	}
	for id := range g.st.SelectedRows {
		if !present[id] {
			delete(g.st.SelectedRows, id)
		}
	}
}

// clampPageLocked moves back to the last page when the current one came back
// empty past a known total. It reports whether the page changed.
func (g *Grid) clampPageLocked(page crud.Page) bool {
	if len(page.Items) > 0 || page.Total == nil || g.st.Page <= 1 {
		return false
	}
	last := totalPages(*page.Total, g.st.PerPage)
	if last < 1 {
		last = 1
	}
	if g.st.Page <= last {
		return false
	}
	g.st.Page = last
	return true
}

// PageInfo summarizes pagination for the current state and result.
type PageInfo struct {
	Page       int
	PerPage    int
	Total      *int
	TotalPages int // zero when unknown
	HasNext    bool
	HasPrev    bool
}

// PageInfo reconciles the server total, or its absence, with the loaded rows.
func (g *Grid) PageInfo() PageInfo {
	g.mu.Lock()
	page, perPage := g.st.Page, g.st.PerPage
	g.mu.Unlock()
	return Paginate(page, perPage, g.results.Snapshot())
}

// Paginate decides whether further pages exist. Without a total it trusts
// has_more, and without that it assumes more rows when the page came back
// full.
func Paginate(page, perPage int, snap state.Snapshot) PageInfo {
	info := PageInfo{Page: page, PerPage: perPage, Total: snap.Total, HasPrev: page > 1}
	switch {
	case snap.Total != nil:
		info.TotalPages = totalPages(*snap.Total, perPage)
		info.HasNext = page*perPage < *snap.Total
	case snap.HasMore != nil:
		info.HasNext = *snap.HasMore
	default:
		info.HasNext = !snap.HasData || len(snap.Items) >= perPage
	}
	return info
}

func totalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
