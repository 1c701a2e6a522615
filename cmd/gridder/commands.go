package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/five82/gridder/internal/app"
	"github.com/five82/gridder/internal/config"
	"github.com/five82/gridder/internal/grid"
	"github.com/five82/gridder/internal/logtail"
)

// loadEnv reads the config and builds a grid for one-shot commands.
func loadEnv(ctx context.Context, flags *rootFlags, offline bool) (*app.Env, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := app.NewLogger(cfg.LogFile, cfg.LogLevel, flags.verbose)
	if err != nil {
		return nil, err
	}
	env, err := app.Build(ctx, cfg, logger, app.BuildOptions{View: flags.view, Offline: offline})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return env, nil
}

func newURLCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the API request and view location for the resolved state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv(cmd.Context(), flags, true)
			if err != nil {
				return err
			}
			defer env.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "api:  %s\n", env.Grid.BuildAPIURL())
			fmt.Fprintf(out, "view: ?%s\n", env.Grid.Location().Encode())
			return nil
		},
	}
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	var format, scope, outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the resource using the current search, filters and sort",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scope != grid.ScopeAll && scope != grid.ScopeQuery {
				return fmt.Errorf("scope must be %q or %q", grid.ScopeAll, grid.ScopeQuery)
			}
			env, err := loadEnv(cmd.Context(), flags, true)
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := env.Grid.Export(cmd.Context(), format, scope)
			if err != nil {
				return err
			}
			if len(res.Body) == 0 {
				env.Logger.Info("export queued", zap.String("status", res.Status))
				fmt.Fprintf(cmd.OutOrStdout(), "export %s\n", res.Status)
				return nil
			}

			dest := outPath
			if dest == "" {
				dest = filepath.Base(res.Filename)
				if dest == "." || dest == "" || dest == string(filepath.Separator) {
					dest = "export." + format
				}
			}
			if dest == "-" {
				_, err = cmd.OutOrStdout().Write(res.Body)
				return err
			}
			if err := os.WriteFile(dest, res.Body, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", dest, len(res.Body))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "export format")
	cmd.Flags().StringVar(&scope, "scope", grid.ScopeQuery, "rows to export: query or all")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file, - for stdout (default: server file name)")
	return cmd
}

func newStateCmd(flags *rootFlags) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Manage stored grid preferences",
	}
	stateCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget stored sort, filters, columns and view mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			client, err := app.NewClient(cfg)
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cfg, client, zap.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.ClearPersisted(); err != nil {
				return fmt.Errorf("clear state: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared stored state for %s\n", cfg.Store.Namespace)
			return nil
		},
	})
	return stateCmd
}

func newLogsCmd(flags *rootFlags) *cobra.Command {
	var lines int
	var level string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the application log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			var minLevel zapcore.Level
			if err := minLevel.UnmarshalText([]byte(level)); err != nil {
				return fmt.Errorf("parse level %q: %w", level, err)
			}
			entries, err := logtail.Read(cfg.LogFile, lines, minLevel)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintln(out, e.Format())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 200, "number of log lines to read")
	cmd.Flags().StringVar(&level, "level", "debug", "lowest level to print")
	return cmd
}
