package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/database/cache"
	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/remote"
)

// ErrMissingID is returned by Update when the record carries no id.
var ErrMissingID = fmt.Errorf("%w: record has no id", entities.ErrInvalid)

// Catalog serves one entity kind.
type Catalog[T any, P entities.Ptr[T]] struct {
	o      *Orchestrator
	store  *cache.Store[T, P]
	remote *remote.Gateway[T, P]
	kind   entities.Kind
}

func newCatalog[T any, P entities.Ptr[T]](o *Orchestrator, store *cache.Store[T, P], gw *remote.Gateway[T, P]) *Catalog[T, P] {
	return &Catalog[T, P]{o: o, store: store, remote: gw, kind: store.Kind()}
}

func (c *Catalog[T, P]) Kind() entities.Kind {
	return c.kind
}

// GetAll returns the remote collection and refreshes the cache with it. When
// the remote cannot answer, the cached collection is returned instead.
func (c *Catalog[T, P]) GetAll(ctx context.Context) ([]T, error) {
	items, err := c.remote.FetchAll(ctx, c.o.cfg.PageSize, remote.Interactive)
	if err != nil {
		c.o.degraded(ctx, entities.AuditEventRead, c.kind, "get_all", "remote read failed, serving cache", 0, err)
		return c.store.GetAll(ctx)
	}

	if _, err := c.store.ApplyRemote(ctx, items); err != nil {
		c.o.degraded(ctx, entities.AuditEventRead, c.kind, "get_all", "failed to refresh cache", 0, err)
	}
	return items, nil
}

// Get returns the cached record with the given id.
func (c *Catalog[T, P]) Get(ctx context.Context, id uint) (P, error) {
	return c.store.Get(ctx, id)
}

// Create sends rec to the store of record and caches what it answered. When
// that fails rec is saved locally as a pending create and returned as given.
func (c *Catalog[T, P]) Create(ctx context.Context, rec P) (P, error) {
	if err := c.store.Check(ctx, rec); err != nil {
		return nil, err
	}

	if !c.o.sess.Authenticated() {
		return c.createLocal(ctx, rec, errSignedOut)
	}

	created, err := c.remote.Create(ctx, rec)
	if err != nil {
		return c.createLocal(ctx, rec, err)
	}
	created.SetPending(entities.PendingNone)
	if err := c.store.Upsert(ctx, created); err != nil {
		c.o.degraded(ctx, entities.AuditEventWrite, c.kind, "create", "created remotely, cache write failed", created.GetID(), err)
	}
	return created, nil
}

func (c *Catalog[T, P]) createLocal(ctx context.Context, rec P, cause error) (P, error) {
	if err := c.store.SaveLocal(ctx, rec, entities.PendingCreate); err != nil {
		return nil, err
	}
	c.o.degraded(ctx, entities.AuditEventWrite, c.kind, "create", "remote create failed, saved locally", rec.GetID(), cause)
	return rec, nil
}

// Update replaces the record remotely and in the cache. When the remote
// cannot apply it, the change is saved locally as a pending update.
func (c *Catalog[T, P]) Update(ctx context.Context, rec P) (P, error) {
	id := rec.GetID()
	if id == 0 {
		return nil, ErrMissingID
	}
	if err := c.store.Check(ctx, rec); err != nil {
		return nil, err
	}

	switch {
	case !c.o.sess.Authenticated():
		return c.updateLocal(ctx, rec, errSignedOut)
	case c.unsent(ctx, id):
		return c.updateLocal(ctx, rec, errors.New("record not yet created remotely"))
	}

	if err := c.remote.Update(ctx, rec); err != nil {
		return c.updateLocal(ctx, rec, err)
	}
	rec.SetPending(entities.PendingNone)
	if err := c.store.Upsert(ctx, rec); err != nil {
		c.o.degraded(ctx, entities.AuditEventWrite, c.kind, "update", "updated remotely, cache write failed", id, err)
	}
	return rec, nil
}

func (c *Catalog[T, P]) updateLocal(ctx context.Context, rec P, cause error) (P, error) {
	if err := c.store.SaveLocal(ctx, rec, entities.PendingUpdate); err != nil {
		return nil, err
	}
	c.o.degraded(ctx, entities.AuditEventWrite, c.kind, "update", "remote update failed, saved locally", rec.GetID(), cause)
	return rec, nil
}

// Delete removes the record remotely and soft-deletes it in the cache. When
// the remote cannot apply it, the delete is queued for the next pass. It
// reports success either way.
func (c *Catalog[T, P]) Delete(ctx context.Context, id uint) error {
	switch {
	case !c.o.sess.Authenticated():
		return c.deleteLocal(ctx, id, errSignedOut)
	case c.unsent(ctx, id):
		return c.store.DeleteLocal(ctx, id)
	}

	if err := c.remote.Delete(ctx, id); err != nil && !isNotFound(err) {
		return c.deleteLocal(ctx, id, err)
	}
	if err := c.store.Delete(ctx, id); err != nil {
		c.o.degraded(ctx, entities.AuditEventWrite, c.kind, "delete", "deleted remotely, cache write failed", id, err)
	}
	return nil
}

func (c *Catalog[T, P]) deleteLocal(ctx context.Context, id uint, cause error) error {
	if err := c.store.DeleteLocal(ctx, id); err != nil {
		return err
	}
	c.o.degraded(ctx, entities.AuditEventWrite, c.kind, "delete", "remote delete failed, deleted locally", id, cause)
	return nil
}

// unsent reports whether id is a row created offline that the store of
// record has never seen.
func (c *Catalog[T, P]) unsent(ctx context.Context, id uint) bool {
	rec, err := c.store.Get(ctx, id)
	return err == nil && rec.Pending() == entities.PendingCreate
}

// push sends every pending local change of this kind. It stops at the first
// failure that means the remote is unreachable.
func (c *Catalog[T, P]) push(ctx context.Context) (int, error) {
	pending, err := c.store.Pending(ctx)
	if err != nil {
		return 0, err
	}

	var (
		pushed int
		errs   []error
	)
	for i := range pending {
		rec := P(&pending[i])
		err := c.pushOne(ctx, rec)
		if err == nil {
			pushed++
			continue
		}
		errs = append(errs, fmt.Errorf("%s %d: %w", rec.Pending(), rec.GetID(), err))
		if errors.Is(err, remote.ErrUnavailable) && !errors.Is(err, remote.ErrNotApplied) {
			break
		}
	}
	return pushed, errors.Join(errs...)
}

func (c *Catalog[T, P]) pushOne(ctx context.Context, rec P) error {
	id := rec.GetID()
	switch rec.Pending() {
	case entities.PendingCreate:
		body := *rec
		send := P(&body)
		send.SetID(0)
		created, err := c.remote.Create(ctx, send)
		if err != nil {
			return err
		}
		return c.store.Adopt(ctx, id, created)

	case entities.PendingUpdate:
		if err := c.remote.Update(ctx, rec); err != nil {
			return err
		}
		return c.store.ClearPending(ctx, id)

	case entities.PendingDelete:
		if err := c.remote.Delete(ctx, id); err != nil && !isNotFound(err) {
			return err
		}
		return c.store.ClearPending(ctx, id)
	}
	return nil
}

// pull fetches the whole collection under the bulk deadline and applies it.
// It returns how many items were fetched and how many were written.
func (c *Catalog[T, P]) pull(ctx context.Context) (int, int, error) {
	items, err := c.remote.FetchAll(ctx, c.o.cfg.PageSize, remote.Bulk)
	if err != nil {
		return 0, 0, err
	}
	applied, err := c.store.ApplyRemote(ctx, items)
	if err != nil {
		return len(items), 0, err
	}
	c.o.log.Debug("pulled",
		zap.String("kind", string(c.kind)),
		zap.Int("fetched", len(items)),
		zap.Int("applied", applied))
	return len(items), applied, nil
}

func isNotFound(err error) bool {
	var status *remote.StatusError
	return errors.As(err, &status) && status.StatusCode == http.StatusNotFound
}
