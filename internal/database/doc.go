// Package database provides the local catalog cache backing the offline-first
// sync layer.
//
// # Architecture
//
//	database/
//	├── database.go      # Connection setup, schema, seeding
//	├── cache/           # Generic per-kind store: upsert/merge, soft delete, purge
//	├── audit/           # Diagnostic event persistence
//	├── syncstate/       # Per-kind full-sync bookkeeping
//	└── settings/        # Key/value settings (persisted session token)
//
// # Usage
//
//	db, err := database.Open(ctx, "./bibliotheek.db", database.Options{}, logger)
//	if err := db.EnsureSchema(ctx); err != nil { ... }
//	catalog := cache.New(db.DB, logger)
//	books, err := catalog.Books.GetAll(ctx)
//
// Every repository call derives its own short-lived session from the shared
// *gorm.DB with WithContext, so no unit of work outlives a single operation.
package database
