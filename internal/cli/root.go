// Package cli implements the bibliotheek command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/config"
	"github.com/mrlokans/bibliotheek/internal/entrypoint"
)

// options holds the persistent flags shared by every command.
type options struct {
	envFile   string
	dbPath    string
	remoteURL string
	json      bool
	version   string
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &options{version: version}

	root := &cobra.Command{
		Use:   "bibliotheek",
		Short: "Offline-first client for a library catalog",
		Long: `bibliotheek keeps a local copy of a library catalog (categories, books,
members and loans) in sync with a remote store of record.

Reads fall back to the local cache and writes are queued locally while
the remote is unreachable; "bibliotheek sync" pushes them later.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file loaded before the environment")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Path to the local cache database (overrides DATABASE_PATH)")
	root.PersistentFlags().StringVar(&opts.remoteURL, "remote", "", "Base URL of the store of record (overrides REMOTE_URL)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Print results as JSON")

	root.AddCommand(
		newServeCommand(opts),
		newSyncCommand(opts),
		newStatusCommand(opts),
		newListCommand(opts),
		newAddCommand(opts),
		newDeleteCommand(opts),
		newLoansCommand(opts),
		newAuditCommand(opts),
	)
	return root
}

// Execute runs the command line with the process arguments.
func Execute(ctx context.Context, version string) error {
	return NewRootCommand(version).ExecuteContext(ctx)
}

func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.remoteURL != "" {
		cfg.Remote.BaseURL = o.remoteURL
	}
	return cfg, nil
}

// withApp builds the application for one command and closes it afterwards.
func (o *options) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *entrypoint.App) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	log, err := entrypoint.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := entrypoint.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn("error closing database", zap.Error(err))
		}
	}()

	return fn(ctx, app)
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, task queue and local status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *entrypoint.App) error {
				return entrypoint.Serve(ctx, app, opts.version)
			})
		},
	}
}
