package entrypoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/config"
	"github.com/mrlokans/bibliotheek/internal/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.Database{
			Path:        filepath.Join(t.TempDir(), "cache.db"),
			BusyTimeout: time.Second,
			Seed:        true,
		},
		Remote: config.Remote{
			BaseURL:            "http://127.0.0.1:1",
			InteractiveTimeout: 200 * time.Millisecond,
			BulkTimeout:        200 * time.Millisecond,
			MaxRetries:         1,
			RetryBaseDelay:     time.Millisecond,
		},
		Sync: config.Sync{PageSize: 100},
		Auth: config.Auth{BcryptCost: 4},
	}
}

func TestBuild_AnonymousWithoutCredentials(t *testing.T) {
	cfg := testConfig(t)

	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	assert.True(t, app.Bootstrap.SchemaReady)
	assert.Equal(t, 5, app.Bootstrap.Seeded.Categories)
	assert.Equal(t, session.ModeAnonymous, app.Session.Mode())
	require.NotNil(t, app.Syncer)

	counts, err := app.Cache.Counts(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, counts["book"])

	_, err = os.Stat(filepath.Join(filepath.Dir(cfg.Database.Path), keyFileName))
	assert.NoError(t, err, "a token key is generated next to the database")
}

func TestBuild_ReadsOfflineFromCache(t *testing.T) {
	cfg := testConfig(t)

	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	books, err := app.Syncer.Books.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, books, 3)
}

func TestBuild_InvalidRemoteURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.BaseURL = "://nope"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(config.Log{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger(config.Log{Level: "loud"})
	assert.Error(t, err)
}
