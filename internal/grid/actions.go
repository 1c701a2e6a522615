package grid

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/five82/gridder/internal/behavior"
	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/notify"
)

// FetchDetail loads one record. It runs independently of list refreshes and
// never touches grid state.
func (g *Grid) FetchDetail(ctx context.Context, id string) (crud.Record, error) {
	if g.isDestroyed() {
		return nil, ErrDestroyed
	}
	return g.opts.Fetcher.FetchDetail(ctx, g.opts.Resource, id)
}

// Schema loads the resource schema.
func (g *Grid) Schema(ctx context.Context) (crud.Schema, error) {
	if g.isDestroyed() {
		return crud.Schema{}, ErrDestroyed
	}
	return g.opts.Fetcher.FetchSchema(ctx, g.opts.Resource)
}

// Tabs loads the edit-panel tab layout.
func (g *Grid) Tabs(ctx context.Context) ([]crud.Tab, error) {
	if g.isDestroyed() {
		return nil, ErrDestroyed
	}
	return g.opts.Fetcher.FetchTabs(ctx, g.opts.Resource)
}

// ApplySchema adopts the schema's fields as declared columns when none were
// configured. It reports whether the columns changed.
func (g *Grid) ApplySchema(s crud.Schema) bool {
	g.mu.Lock()
	if len(g.columns) > 0 || len(s.Fields) == 0 {
		g.mu.Unlock()
		return false
	}
	cols := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name != "" {
			cols = append(cols, f.Name)
		}
	}
	g.columns = cols
	g.mu.Unlock()
	return true
}

func (g *Grid) isDestroyed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.destroyed
}

// RunBulkAction applies action to the selected rows. The outcome, including
// per-item failures, is reported through the notifier; on success the
// selection is cleared and the list refreshed.
func (g *Grid) RunBulkAction(ctx context.Context, action string) (crud.BulkResult, error) {
	if g.isDestroyed() {
		return crud.BulkResult{}, ErrDestroyed
	}
	if g.opts.Behaviors.Bulk == nil {
		err := errors.New("bulk actions are not configured")
		notify.Notifyf(g.notifier, notify.Error, "%v", err)
		return crud.BulkResult{}, err
	}
	ids := g.SelectedIDs()
	res, err := g.opts.Behaviors.Bulk.Run(ctx, action, ids)
	if err != nil {
		g.logger.Warn("bulk action failed", zap.String("action", action), zap.Int("rows", len(ids)), zap.Error(err))
		notify.Notifyf(g.notifier, notify.Error, "%v", err)
		return crud.BulkResult{}, err
	}

	level := notify.Success
	if res.Failed > 0 {
		level = notify.Warning
	}
	g.notifier.Notify(level, behavior.SummarizeBulk(action, res))
	g.logger.Info("bulk action finished",
		zap.String("action", action),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
	)

	if err := g.ClearSelection(); err != nil {
		return res, err
	}
	g.scheduleRefresh()
	return res, nil
}

// Export scopes.
const (
	ScopeAll      = "all"
	ScopeSelected = "selected"
	ScopeQuery    = "query"
)

// Export runs an export of the visible columns. Scope picks the rows: every
// row, the selection, or the current search and filters.
func (g *Grid) Export(ctx context.Context, format, scope string) (behavior.ExportOutcome, error) {
	if g.isDestroyed() {
		return behavior.ExportOutcome{}, ErrDestroyed
	}
	if g.opts.Behaviors.Export == nil {
		err := errors.New("export is not configured")
		notify.Notifyf(g.notifier, notify.Error, "%v", err)
		return behavior.ExportOutcome{}, err
	}

	req := crud.ExportRequest{Format: strings.ToLower(strings.TrimSpace(format)), Columns: g.VisibleColumns()}
	switch scope {
	case ScopeSelected:
		ids := g.SelectedIDs()
		if len(ids) == 0 {
			err := errors.New("export: no rows selected")
			notify.Notifyf(g.notifier, notify.Warning, "%v", err)
			return behavior.ExportOutcome{}, err
		}
		req.Selection = &crud.Selection{Mode: "ids", IDs: ids}
	case ScopeQuery:
		params := g.QueryParams()
		delete(params, "limit")
		delete(params, "offset")
		delete(params, "page")
		delete(params, "perPage")
		req.Selection = &crud.Selection{Mode: "query", Params: params}
	case ScopeAll, "":
		req.Selection = &crud.Selection{Mode: "all"}
	default:
		return behavior.ExportOutcome{}, fmt.Errorf("unknown export scope %q", scope)
	}

	out, err := g.opts.Behaviors.Export.Export(ctx, req)
	if err != nil {
		g.logger.Warn("export failed", zap.String("format", req.Format), zap.Error(err))
		notify.Notifyf(g.notifier, notify.Error, "%v", err)
		return out, err
	}
	switch out.Status {
	case behavior.ExportProcessing:
		jobID := ""
		if out.Job != nil {
			jobID = out.Job.ID
		}
		notify.Notifyf(g.notifier, notify.Info, "Export %s still processing (job %s)", req.Format, jobID)
	default:
		notify.Notifyf(g.notifier, notify.Success, "Export ready: %s", out.Filename)
	}
	return out, nil
}
