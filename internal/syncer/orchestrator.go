// Package syncer decides per call whether the store of record or the local
// cache answers, and keeps the two converging through full sync passes.
//
// Remote failures never reach the caller: reads fall back to the cache and
// writes are accepted locally and queued for the next pass. Every fallback is
// reported to the audit sink. Validation and integrity errors are returned.
package syncer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/audit"
	"github.com/mrlokans/bibliotheek/internal/config"
	"github.com/mrlokans/bibliotheek/internal/database/cache"
	"github.com/mrlokans/bibliotheek/internal/database/syncstate"
	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/remote"
	"github.com/mrlokans/bibliotheek/internal/session"
)

const defaultPageSize = 1000

// errSignedOut is reported when a write skips the remote because the session
// is not authenticated.
var errSignedOut = errors.New("not signed in, change kept locally")

type Orchestrator struct {
	Categories *Catalog[entities.Category, *entities.Category]
	Books      *Catalog[entities.Book, *entities.Book]
	Members    *Catalog[entities.Member, *entities.Member]
	Loans      *LoanCatalog

	client *remote.Client
	sess   *session.Session
	audit  *audit.Service
	states *syncstate.Repository
	cfg    config.Sync
	log    *zap.Logger
}

// New wires an orchestrator. states may be nil, in which case sync passes are
// not recorded per kind.
func New(
	cat *cache.Catalog,
	client *remote.Client,
	sess *session.Session,
	sink *audit.Service,
	states *syncstate.Repository,
	cfg config.Sync,
	log *zap.Logger,
) *Orchestrator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	o := &Orchestrator{
		client: client,
		sess:   sess,
		audit:  sink,
		states: states,
		cfg:    cfg,
		log:    log.Named("syncer"),
	}
	o.Categories = newCatalog(o, cat.Categories, remote.NewGateway[entities.Category](client))
	o.Books = newCatalog(o, cat.Books, remote.NewGateway[entities.Book](client))
	o.Members = newCatalog(o, cat.Members, remote.NewGateway[entities.Member](client))
	o.Loans = &LoanCatalog{
		Catalog: newCatalog(o, cat.Loans.Store, remote.NewGateway[entities.Loan](client)),
		loans:   cat.Loans,
	}
	return o
}

// kinds returns the per-kind catalogs in dependency order.
func (o *Orchestrator) kinds() []kindSyncer {
	return []kindSyncer{o.Categories, o.Books, o.Members, o.Loans}
}

func (o *Orchestrator) degraded(ctx context.Context, eventType entities.AuditEventType, kind entities.Kind, action, description string, id uint, err error) {
	o.log.Warn(description,
		zap.String("kind", string(kind)),
		zap.String("action", action),
		zap.Error(err))
	o.record(ctx, entities.AuditEvent{
		EventType:   eventType,
		Kind:        kind,
		Action:      action,
		Description: description,
		Status:      entities.AuditStatusDegraded,
	}, id, err)
}

func (o *Orchestrator) record(ctx context.Context, ev entities.AuditEvent, id uint, err error) {
	if o.audit == nil {
		return
	}
	if id != 0 {
		ev.EntityID = &id
	}
	if err != nil {
		ev.ErrorMsg = err.Error()
	}
	o.audit.Record(ctx, ev)
}
