package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/gridder/internal/app"
)

type rootFlags struct {
	configPath string
	prefsPath  string
	poll       time.Duration
	view       string
	verbose    bool
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gridder: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "gridder",
		Short:         "Browse a CRUD API resource as a terminal data grid",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), app.Options{
				ConfigPath: flags.configPath,
				PrefsPath:  flags.prefsPath,
				PollEvery:  flags.poll,
				View:       flags.view,
				Verbose:    flags.verbose,
			})
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.config/gridder/config.toml)")
	pf.StringVar(&flags.view, "view", "", "view location to open, as printed by \"gridder url\"")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")
	root.Flags().StringVar(&flags.prefsPath, "prefs", "", "UI preferences file (default ~/.config/gridder/prefs.toml)")
	root.Flags().DurationVar(&flags.poll, "poll", 0, "refresh interval (default from config, 5s)")

	root.AddCommand(newURLCmd(flags), newExportCmd(flags), newStateCmd(flags), newLogsCmd(flags))
	return root
}
