// Package cache is the local, always-available copy of the library catalog.
//
// A Store holds one entity kind. Writes merge with an existing row by id, or
// by natural key for records that have no server id yet, so replaying the
// same records never grows the table. Rows are soft-deleted; readers only see
// rows with is_deleted = false.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

type writeMode int

const (
	// modeReplace lets the incoming record win. Used for write-through of
	// records the store of record has accepted.
	modeReplace writeMode = iota
	// modeRemote applies a pulled snapshot but keeps rows that still hold
	// local changes nobody has pushed yet.
	modeRemote
	// modeLocal records a change the store of record has not seen.
	modeLocal
)

// reference is a column in another table holding ids of this store's kind.
type reference struct {
	table  string
	column string
}

type guardFunc[P any] func(tx *gorm.DB, rec P, self uint, apply bool) error

// Store is the cache for a single entity kind.
type Store[T any, P entities.Ptr[T]] struct {
	db    *gorm.DB
	log   *zap.Logger
	kind  entities.Kind
	order string
	refs  []reference
	guard guardFunc[P]
}

func newStore[T any, P entities.Ptr[T]](db *gorm.DB, log *zap.Logger, order string, refs ...reference) *Store[T, P] {
	var zero T
	kind := P(&zero).Kind()
	return &Store[T, P]{
		db:    db,
		log:   log.With(zap.String("kind", string(kind))),
		kind:  kind,
		order: order,
		refs:  refs,
	}
}

func active(db *gorm.DB) *gorm.DB {
	return db.Where("is_deleted = ?", false)
}

func (s *Store[T, P]) Kind() entities.Kind {
	return s.kind
}

// GetAll returns every active row in display order.
func (s *Store[T, P]) GetAll(ctx context.Context) ([]T, error) {
	var out []T
	if err := s.db.WithContext(ctx).Scopes(active).Order(s.order).Find(&out).Error; err != nil {
		return nil, s.fail("get_all", err)
	}
	return out, nil
}

// GetAllIncludingDeleted returns active and soft-deleted rows.
func (s *Store[T, P]) GetAllIncludingDeleted(ctx context.Context) ([]T, error) {
	var out []T
	if err := s.db.WithContext(ctx).Order(s.order).Find(&out).Error; err != nil {
		return nil, s.fail("get_all_including_deleted", err)
	}
	return out, nil
}

// Get returns the active row with the given id or ErrNotFound.
func (s *Store[T, P]) Get(ctx context.Context, id uint) (P, error) {
	var rec T
	err := s.db.WithContext(ctx).Scopes(active).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s %d: %w", s.kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, s.fail("get", err)
	}
	return &rec, nil
}

// Count returns the number of active rows.
func (s *Store[T, P]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(new(T)).Scopes(active).Count(&n).Error; err != nil {
		return 0, s.fail("count", err)
	}
	return n, nil
}

// Pending returns rows, deleted or not, holding changes the store of record
// has not acknowledged, oldest first.
func (s *Store[T, P]) Pending(ctx context.Context) ([]T, error) {
	var out []T
	err := s.db.WithContext(ctx).Where("pending <> ?", entities.PendingNone).Order("updated_at ASC, id ASC").Find(&out).Error
	if err != nil {
		return nil, s.fail("pending", err)
	}
	return out, nil
}

// Upsert inserts rec or merges it into the row it matches. On return rec
// carries the id of the row that was written.
func (s *Store[T, P]) Upsert(ctx context.Context, rec P) error {
	_, err := s.write(ctx, "upsert", []P{rec}, modeReplace)
	return err
}

// UpsertBatch upserts every item inside one transaction: either all items are
// written or none are.
func (s *Store[T, P]) UpsertBatch(ctx context.Context, items []T) error {
	_, err := s.write(ctx, "upsert_batch", pointers[T, P](items), modeReplace)
	return err
}

// ApplyRemote writes a page pulled from the store of record in one
// transaction. Rows with unsent local changes are left untouched; the number
// of items actually written is returned.
func (s *Store[T, P]) ApplyRemote(ctx context.Context, items []T) (int, error) {
	return s.write(ctx, "apply_remote", pointers[T, P](items), modeRemote)
}

// SaveLocal writes rec and marks it as a pending create or update to be pushed
// on the next full sync. A row that was itself never pushed stays a pending
// create; a create merged into a row the store of record knows becomes an
// update.
func (s *Store[T, P]) SaveLocal(ctx context.Context, rec P, op entities.PendingOp) error {
	rec.SetPending(op)
	_, err := s.write(ctx, "save_local", []P{rec}, modeLocal)
	return err
}

// Check runs validation and the kind's integrity rules against rec without
// writing anything.
func (s *Store[T, P]) Check(ctx context.Context, rec P) error {
	if err := s.prepare(rec); err != nil {
		return err
	}
	if s.guard == nil {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.resolve(tx, rec)
		if err != nil {
			return err
		}
		return s.guard(tx, rec, m.id, false)
	})
	if err != nil {
		return s.fail("check", err)
	}
	return nil
}

// Delete soft-deletes the row with the given id. Unknown ids are a no-op.
func (s *Store[T, P]) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).
		Updates(map[string]any{"is_deleted": true, "pending": entities.PendingNone}).Error
	if err != nil {
		return s.fail("delete", err)
	}
	return nil
}

// DeleteLocal soft-deletes the row and queues the delete for the next push.
// A row that never reached the store of record is simply retired.
func (s *Store[T, P]) DeleteLocal(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.lookup(tx.Where("id = ?", id))
		if err != nil || m.id == 0 {
			return err
		}
		op := entities.PendingDelete
		if m.pending == entities.PendingCreate {
			op = entities.PendingNone
		}
		return tx.Model(new(T)).Where("id = ?", id).
			Updates(map[string]any{"is_deleted": true, "pending": op}).Error
	})
	if err != nil {
		return s.fail("delete_local", err)
	}
	return nil
}

// ClearPending marks the row as acknowledged by the store of record.
func (s *Store[T, P]) ClearPending(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).
		Update("pending", entities.PendingNone).Error
	if err != nil {
		return s.fail("clear_pending", err)
	}
	return nil
}

// Adopt replaces the locally created row localID with the record the store
// of record returned for it, moving every reference to the server id.
func (s *Store[T, P]) Adopt(ctx context.Context, localID uint, remote P) error {
	remote.Normalize()
	remote.SetPending(entities.PendingNone)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		serverID := remote.GetID()
		if serverID == 0 || serverID == localID {
			remote.SetID(localID)
			return tx.Omit("created_at").Save(remote).Error
		}
		existing, err := s.lookup(tx.Where("id = ?", serverID))
		if err != nil {
			return err
		}
		if existing.id != 0 {
			err = s.collapse(tx, localID, serverID)
		} else {
			err = s.rekey(tx, localID, serverID)
		}
		if err != nil {
			return err
		}
		return tx.Omit("created_at").Save(remote).Error
	})
	if err != nil {
		return s.fail("adopt", err)
	}
	return nil
}

// Purge hard-deletes soft-deleted rows last touched before the cutoff. Deletes
// still waiting to be pushed are kept, as are rows another table references.
func (s *Store[T, P]) Purge(ctx context.Context, before time.Time) (int64, error) {
	q := s.db.WithContext(ctx).
		Where("is_deleted = ? AND pending = ? AND updated_at < ?", true, entities.PendingNone, before)
	for _, ref := range s.refs {
		q = q.Where(fmt.Sprintf("id NOT IN (SELECT %[2]s FROM %[1]s WHERE %[2]s IS NOT NULL)", ref.table, ref.column))
	}
	res := q.Delete(new(T))
	if res.Error != nil {
		return 0, s.fail("purge", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store[T, P]) prepare(rec P) error {
	rec.Normalize()
	return entities.Validate(rec)
}

func (s *Store[T, P]) write(ctx context.Context, op string, recs []P, mode writeMode) (int, error) {
	for i, rec := range recs {
		if err := s.prepare(rec); err != nil {
			return 0, s.fail(op, itemErr(len(recs), i, err))
		}
	}

	applied := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, rec := range recs {
			written, err := s.upsert(tx, rec, mode)
			if err != nil {
				return itemErr(len(recs), i, err)
			}
			if written {
				applied++
			}
		}
		return nil
	})
	if err != nil {
		return 0, s.fail(op, err)
	}
	return applied, nil
}

func itemErr(n, i int, err error) error {
	if n == 1 {
		return err
	}
	return fmt.Errorf("item %d of %d: %w", i+1, n, err)
}

// upsert writes one record inside tx and reports whether it was written.
func (s *Store[T, P]) upsert(tx *gorm.DB, rec P, mode writeMode) (bool, error) {
	m, err := s.resolve(tx, rec)
	if err != nil {
		return false, err
	}

	switch mode {
	case modeRemote:
		if m.id != 0 && !m.byKey && m.pending != entities.PendingNone {
			return false, nil
		}
		rec.SetPending(entities.PendingNone)
	case modeLocal:
		switch {
		case m.pending == entities.PendingCreate:
			rec.SetPending(entities.PendingCreate)
		case m.id != 0 && rec.Pending() == entities.PendingCreate:
			// Merged into a row the store of record already holds.
			rec.SetPending(entities.PendingUpdate)
		}
	}

	if s.guard != nil {
		if err := s.guard(tx, rec, m.id, true); err != nil {
			return false, err
		}
	}

	if m.id == 0 {
		return true, tx.Create(rec).Error
	}

	if m.byKey && rec.GetID() != 0 && rec.GetID() != m.id {
		if err := s.rekey(tx, m.id, rec.GetID()); err != nil {
			return false, err
		}
	} else {
		rec.SetID(m.id)
	}
	return true, tx.Omit("created_at").Save(rec).Error
}

type match struct {
	id      uint
	pending entities.PendingOp
	byKey   bool
}

// resolve finds the row rec should merge into: by id first, including
// soft-deleted rows, then by natural key among active rows.
func (s *Store[T, P]) resolve(tx *gorm.DB, rec P) (match, error) {
	if id := rec.GetID(); id != 0 {
		m, err := s.lookup(tx.Where("id = ?", id))
		if err != nil || m.id != 0 {
			return m, err
		}
	}
	key := rec.NaturalKey()
	if len(key) == 0 {
		return match{}, nil
	}
	m, err := s.lookup(tx.Scopes(active).Where(key))
	m.byKey = m.id != 0
	return m, err
}

func (s *Store[T, P]) lookup(q *gorm.DB) (match, error) {
	var row struct {
		ID      uint
		Pending entities.PendingOp
	}
	err := q.Model(new(T)).Select("id", "pending").Order("id").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return match{}, nil
	}
	if err != nil {
		return match{}, err
	}
	return match{id: row.ID, pending: row.Pending}, nil
}

// rekey moves a row and every reference to it from one id to another.
func (s *Store[T, P]) rekey(tx *gorm.DB, from, to uint) error {
	if err := tx.Model(new(T)).Where("id = ?", from).Update("id", to).Error; err != nil {
		return fmt.Errorf("rekey %s %d -> %d: %w", s.kind, from, to, err)
	}
	return s.repoint(tx, from, to)
}

// collapse drops the local duplicate from and points its references at to.
func (s *Store[T, P]) collapse(tx *gorm.DB, from, to uint) error {
	if err := tx.Where("id = ?", from).Delete(new(T)).Error; err != nil {
		return fmt.Errorf("drop duplicate %s %d: %w", s.kind, from, err)
	}
	return s.repoint(tx, from, to)
}

func (s *Store[T, P]) repoint(tx *gorm.DB, from, to uint) error {
	for _, ref := range s.refs {
		if err := tx.Table(ref.table).Where(ref.column+" = ?", from).Update(ref.column, to).Error; err != nil {
			return fmt.Errorf("repoint %s.%s: %w", ref.table, ref.column, err)
		}
	}
	return nil
}

// fail logs a store error and returns it wrapped with the kind and operation.
// Rule violations are logged at warn level; anything else is a store failure.
func (s *Store[T, P]) fail(op string, err error) error {
	if IsRejected(err) {
		s.log.Warn("cache write rejected", zap.String("op", op), zap.Error(err))
	} else {
		s.log.Error("cache operation failed", zap.String("op", op), zap.Error(err))
	}
	return fmt.Errorf("%s %s: %w", s.kind, op, err)
}

func pointers[T any, P entities.Ptr[T]](items []T) []P {
	out := make([]P, len(items))
	for i := range items {
		out[i] = P(&items[i])
	}
	return out
}
