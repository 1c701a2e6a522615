package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/five82/gridder/internal/config"
	"github.com/five82/gridder/internal/prefs"
	"github.com/five82/gridder/internal/realtime"
	"github.com/five82/gridder/internal/ui"
)

// Options configure the gridder application.
type Options struct {
	ConfigPath string
	PrefsPath  string        // empty uses default ~/.config/gridder/prefs.toml
	PollEvery  time.Duration // zero uses the configured interval
	View       string        // location to open, as printed by "gridder url"
	Verbose    bool
}

// Run boots the gridder TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.PollEvery > 0 {
		cfg.PollInterval = opts.PollEvery
	}

	logger, err := NewLogger(cfg.LogFile, cfg.LogLevel, opts.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting gridder",
		zap.String("api", cfg.APIURL),
		zap.String("resource", cfg.Resource),
		zap.String("store", cfg.Store.Backend),
	)

	themeName := loadTheme(opts.PrefsPath, logger)

	env, err := Build(ctx, cfg, logger, BuildOptions{View: opts.View})
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	env.Grid.Start()
	poller := StartPoller(runCtx, env.Grid, cfg.PollInterval, logger.Named("poller"))

	var feed *realtime.Client
	if cfg.RealtimeURL != "" {
		feed, err = realtime.New(realtime.Options{
			URL:      cfg.RealtimeURL,
			Resource: cfg.Resource,
			Header:   env.Client.Headers(),
			Logger:   logger.Named("realtime"),
		})
		if err != nil {
			return err
		}
		go func() {
			_ = feed.Run(runCtx, func(realtime.Event) { poller.Kick() })
		}()
	}

	if watchPath := watchTarget(cfg); watchPath != "" {
		w, err := prefs.Watch(runCtx, watchPath, logger.Named("watch"), func() {
			if p, ok := env.Store.LoadPersisted(); ok {
				if err := env.Grid.ReconcilePersisted(p); err != nil {
					logger.Debug("reconcile preferences", zap.Error(err))
				}
			}
		})
		if err != nil {
			logger.Warn("preferences watch disabled", zap.Error(err))
		} else {
			defer w.Close()
		}
	}

	uiOpts := ui.Options{
		Context:   runCtx,
		Grid:      env.Grid,
		Toasts:    env.Toasts,
		Logger:    logger.Named("ui"),
		ThemeName: themeName,
		PrefsPath: opts.PrefsPath,
		Refresh:   poller.Kick,
	}
	if feed != nil {
		uiOpts.Live = feed.Connected
	}
	err = ui.Run(uiOpts)
	cancel()
	<-poller.Done()
	return err
}

// loadTheme returns the saved UI theme. Unreadable preferences fall back to
// the default theme.
func loadTheme(path string, logger *zap.Logger) string {
	p, err := prefs.Load(path)
	if err != nil {
		logger.Warn("load preferences", zap.Error(err))
	}
	return p.Theme
}

// watchTarget returns the file whose changes other terminals make, or "" for
// stores without one.
func watchTarget(cfg config.Config) string {
	switch cfg.Store.Backend {
	case config.BackendFile, config.BackendSQLite:
		return cfg.Store.Path
	}
	return ""
}
