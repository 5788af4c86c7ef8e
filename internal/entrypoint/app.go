// Package entrypoint assembles the database, session, remote client, cache
// and sync orchestrator from configuration.
package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/audit"
	"github.com/mrlokans/bibliotheek/internal/config"
	"github.com/mrlokans/bibliotheek/internal/crypto"
	"github.com/mrlokans/bibliotheek/internal/database"
	dbaudit "github.com/mrlokans/bibliotheek/internal/database/audit"
	"github.com/mrlokans/bibliotheek/internal/database/cache"
	"github.com/mrlokans/bibliotheek/internal/database/settings"
	"github.com/mrlokans/bibliotheek/internal/database/syncstate"
	"github.com/mrlokans/bibliotheek/internal/remote"
	"github.com/mrlokans/bibliotheek/internal/session"
	"github.com/mrlokans/bibliotheek/internal/syncer"
	"github.com/mrlokans/bibliotheek/internal/tokenstore"
)

// keyFileName holds the generated token encryption key when no secret is
// configured. It lives next to the database file.
const keyFileName = ".bibliotheek.key"

// App holds the wired components of one process.
type App struct {
	Config    *config.Config
	Log       *zap.Logger
	DB        *database.Database
	Session   *session.Session
	Remote    *remote.Client
	Audit     *audit.Service
	Cache     *cache.Catalog
	States    *syncstate.Repository
	Syncer    *syncer.Orchestrator
	Bootstrap session.Report
}

// Build opens the local database, runs the bootstrap sequence and wires the
// orchestrator. Only an unopenable database or an invalid remote URL fail;
// everything else degrades and is reported on App.Bootstrap.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.Open(ctx, cfg.Database.Path, database.Options{BusyTimeout: cfg.Database.BusyTimeout}, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sink := audit.NewService(dbaudit.NewRepository(db.DB), log)
	sess := session.New()

	client, err := remote.NewClient(session.NewHTTPClient(sess), remote.OptionsFromConfig(cfg.Remote), log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("remote client: %w", err)
	}

	tokens, err := newTokenStore(db, cfg.Auth.TokenSecret)
	if err != nil {
		log.Warn("token persistence disabled", zap.Error(err))
	}

	report := session.NewBootstrap(db, client, tokens, sink, *cfg, log).Run(ctx, sess)
	if !report.SchemaReady {
		db.Close()
		return nil, fmt.Errorf("prepare schema: %w", errors.Join(report.Errors...))
	}

	cat := cache.New(db.DB, log)
	states := syncstate.NewRepository(db.DB)

	return &App{
		Config:    cfg,
		Log:       log,
		DB:        db,
		Session:   sess,
		Remote:    client,
		Audit:     sink,
		Cache:     cat,
		States:    states,
		Syncer:    syncer.New(cat, client, sess, sink, states, cfg.Sync, log),
		Bootstrap: report,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}

// newTokenStore seals persisted tokens with the configured secret, or with a
// key generated once and kept next to the database.
func newTokenStore(db *database.Database, secret string) (*tokenstore.TokenStore, error) {
	keyFile := filepath.Join(filepath.Dir(db.Path()), keyFileName)
	key, err := tokenstore.ResolveEncryptionKey(secret, keyFile)
	if err != nil {
		return nil, err
	}
	enc, err := crypto.NewEncryptorFromSecret(key)
	if err != nil {
		return nil, err
	}
	return tokenstore.New(settings.NewRepository(db.DB), enc), nil
}
