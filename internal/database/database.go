package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

type Options struct {
	BusyTimeout time.Duration
	LogLevel    logger.LogLevel
}

type Database struct {
	DB   *gorm.DB
	path string
	log  *zap.Logger
}

// Open connects to the sqlite file at path. Writers are serialised on a single
// connection so concurrent sync tasks queue on the busy timeout instead of
// failing with SQLITE_BUSY.
func Open(ctx context.Context, path string, opts Options, log *zap.Logger) (*Database, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}

	db, err := gorm.Open(sqlite.Open(dsn(path, opts.BusyTimeout)), &gorm.Config{
		// Misses are answered by the callers, not logged.
		Logger: logger.New(gormWriter{log.Named("gorm").Sugar()}, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to reach database %s: %w", path, err)
	}

	log.Info("database opened", zap.String("path", path))
	return &Database{DB: db, path: path, log: log}, nil
}

// gormWriter hands gorm's formatted log lines to zap.
type gormWriter struct {
	log *zap.SugaredLogger
}

func (w gormWriter) Printf(format string, args ...any) { w.log.Warnf(format, args...) }

func dsn(path string, busy time.Duration) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", path, sep, busy.Milliseconds())
}

// EnsureSchema creates or migrates every table the cache needs. Running it on
// an up-to-date database is a no-op.
func (d *Database) EnsureSchema(ctx context.Context) error {
	err := d.DB.WithContext(ctx).AutoMigrate(
		&entities.Category{},
		&entities.Book{},
		&entities.Member{},
		&entities.Loan{},
		&entities.AuditEvent{},
		&entities.Setting{},
		&entities.SyncState{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Path returns the file the database was opened from.
func (d *Database) Path() string {
	return d.path
}

// Ping checks connectivity to the underlying sqlite file.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
