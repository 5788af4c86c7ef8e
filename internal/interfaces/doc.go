// Package interfaces documents the seams between packages and checks at
// compile time that the concrete types still fit them.
//
// # Interface Categories
//
// ## Bootstrap
//
//   - Schema: local schema and seed data (internal/session/bootstrap.go)
//   - Authenticator: login and token verification (internal/session/bootstrap.go)
//
// ## Background Work
//
//   - Syncer: full sync passes (internal/tasks/sync_all.go)
//   - DeletedPurger: purge of acknowledged deletes (internal/tasks/maintenance.go)
//   - AuditEventCleaner: audit retention (internal/tasks/maintenance.go)
//   - Enqueuer: durable queue used by the scheduler (internal/scheduler/sync.go)
//
// ## Status API
//
//   - Pinger, SessionView, RemoteStatus, SyncStates, SyncTrigger, TaskQueue,
//     AuditReader, CatalogReader (internal/http/config.go)
//
// # Adding a New Kind
//
// To keep another collection in sync with the store of record:
//
//  1. Define the entity in internal/entities/ embedding Model and implement
//     Kind, NaturalKey and Normalize. Add it to entities.Kinds in dependency
//     order and to database.EnsureSchema.
//
//  2. Add a Store for it in cache.New, listing the tables that reference it
//     so rekeying follows local ids to server ids.
//
//  3. Give the gateway its path in internal/remote/gateway.go and add a
//     Catalog for it in syncer.New and Orchestrator.kinds.
//
// # Compile-Time Interface Checks
//
// Implementations are checked here rather than next to the type so that
// the consumer packages stay free of imports from their providers:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
package interfaces
