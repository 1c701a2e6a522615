package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/five82/gridder/internal/behavior"
	"github.com/five82/gridder/internal/config"
	"github.com/five82/gridder/internal/crud"
	"github.com/five82/gridder/internal/grid"
	"github.com/five82/gridder/internal/grouping"
	"github.com/five82/gridder/internal/notify"
	"github.com/five82/gridder/internal/prefs"
	"github.com/five82/gridder/internal/state"
	"github.com/five82/gridder/internal/urlstate"
)

// Env holds everything built from a config for one grid.
type Env struct {
	Config config.Config
	Logger *zap.Logger
	Client *crud.Client
	Store  prefs.Store
	Toasts *notify.Queue
	Grid   *grid.Grid
}

// Close tears down the grid and flushes the store.
func (e *Env) Close() error {
	if e.Grid != nil {
		e.Grid.Destroy()
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}

// BuildOptions tune Build.
type BuildOptions struct {
	// View is a location query string (with or without a leading "?" or a
	// full URL) applied over the stored preferences.
	View string
	// Offline skips the warm-up requests.
	Offline bool
}

// Build wires a grid from cfg. Unless opts.Offline is set it first hydrates
// remote preferences and loads the schema concurrently; neither failure is
// fatal.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts BuildOptions) (*Env, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(cfg, client, logger)
	if err != nil {
		return nil, err
	}
	location, err := ParseView(opts.View)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var schema crud.Schema
	if !opts.Offline {
		schema = warmUp(ctx, cfg, client, store, logger)
	}

	toasts := notify.NewQueue(0, 0)
	g, err := grid.New(grid.Options{
		Resource:        cfg.Resource,
		Endpoint:        cfg.Endpoint,
		Fetcher:         client,
		Columns:         cfg.Columns,
		IDField:         cfg.IDField,
		PerPage:         cfg.PerPage,
		DefaultViewMode: state.ViewMode(cfg.DefaultViewMode),
		Behaviors:       Behaviors(cfg, client, logger),
		Grouping: &grouping.Engine{
			Enabled:         cfg.Grouping.Enabled,
			Field:           cfg.Grouping.Field,
			PivotField:      cfg.Grouping.PivotField,
			RequireEnvelope: cfg.Grouping.RequireEnvelope,
		},
		Store:    store,
		Location: location,
		Limits: urlstate.Limits{
			MaxURLLength:     cfg.Limits.MaxURLLength,
			MaxFiltersLength: cfg.Limits.MaxFiltersLength,
		},
		Notifier: notify.Multi{toasts, notify.Log{Logger: logger}},
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if g.ApplySchema(schema) {
		logger.Debug("columns taken from schema", zap.Strings("columns", g.Columns()))
	}

	return &Env{
		Config: cfg,
		Logger: logger,
		Client: client,
		Store:  store,
		Toasts: toasts,
		Grid:   g,
	}, nil
}

func warmUp(ctx context.Context, cfg config.Config, client *crud.Client, store prefs.Store, logger *zap.Logger) crud.Schema {
	var schema crud.Schema
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := store.Hydrate(egCtx); err != nil {
			logger.Warn("preferences hydrate failed", zap.Error(err))
		}
		return nil
	})
	if len(cfg.Columns) == 0 {
		eg.Go(func() error {
			s, err := client.FetchSchema(egCtx, cfg.Resource)
			if err != nil {
				logger.Warn("schema fetch failed", zap.Error(err))
				return nil
			}
			schema = s
			return nil
		})
	}
	_ = eg.Wait()
	return schema
}

// NewClient builds the API client with configured headers and token.
func NewClient(cfg config.Config) (*crud.Client, error) {
	opts := make([]crud.Option, 0, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		opts = append(opts, crud.WithHeader(k, v))
	}
	if cfg.Token != "" {
		opts = append(opts, crud.WithHeader("Authorization", "Bearer "+cfg.Token))
	}
	client, err := crud.NewClient(cfg.APIURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}
	return client, nil
}

// OpenStore opens the configured preference backend, wrapped for server
// sync when store.remote is set.
func OpenStore(cfg config.Config, client prefs.PreferenceClient, logger *zap.Logger) (prefs.Store, error) {
	var backend prefs.Backend
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		b, err := prefs.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		backend = b
	case config.BackendMemory:
		backend = prefs.NewMemoryBackend()
	default:
		b, err := prefs.NewFileBackend(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	local := prefs.NewLocalStore(backend, cfg.Store.Namespace,
		prefs.WithMaxShareEntries(cfg.Store.MaxShareEntries),
		prefs.WithLogger(logger),
	)
	if !cfg.Store.Remote || client == nil {
		return local, nil
	}
	return prefs.NewRemoteStore(local, client, prefs.RemoteOptions{
		Resource:     cfg.Resource,
		Key:          cfg.Store.RemoteKey,
		SyncDebounce: cfg.Store.SyncDebounce,
		Logger:       logger,
	}), nil
}

// Behaviors maps config onto the behavior bundle.
func Behaviors(cfg config.Config, client *crud.Client, logger *zap.Logger) behavior.Set {
	set := behavior.Set{
		Search: behavior.Search{Fields: cfg.SearchFields},
		Export: behavior.Export{
			Client:       client,
			Resource:     cfg.Resource,
			PollInterval: cfg.Export.PollInterval,
			PollTimeout:  cfg.Export.PollTimeout,
			HeavyFormats: cfg.Export.HeavyFormats,
			Logger:       logger,
		},
		Bulk: behavior.Bulk{Client: client, Resource: cfg.Resource},
	}
	if cfg.Pagination == "page" {
		set.Pagination = behavior.PagePagination{}
	}
	return set.WithDefaults()
}

// ParseView accepts a bare query ("page=2&sort=..."), a query with a leading
// "?", or a full URL and returns its values.
func ParseView(raw string) (url.Values, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return url.Values{}, nil
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("parse view: %w", err)
	}
	return values, nil
}
