package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

type (
	Categories = Store[entities.Category, *entities.Category]
	Books      = Store[entities.Book, *entities.Book]
	Members    = Store[entities.Member, *entities.Member]
)

// Catalog groups the per-kind stores over one database handle.
type Catalog struct {
	Categories *Categories
	Books      *Books
	Members    *Members
	Loans      *Loans
}

func New(db *gorm.DB, log *zap.Logger) *Catalog {
	log = log.Named("cache")
	return &Catalog{
		Categories: newStore[entities.Category](db, log, "name COLLATE NOCASE ASC, id ASC",
			reference{table: "books", column: "category_id"}),
		Books: newStore[entities.Book](db, log, "title COLLATE NOCASE ASC, id ASC",
			reference{table: "loans", column: "book_id"}),
		Members: newStore[entities.Member](db, log, "last_name COLLATE NOCASE ASC, first_name COLLATE NOCASE ASC, id ASC",
			reference{table: "loans", column: "member_id"}),
		Loans: newLoans(db, log),
	}
}

// PurgeDeleted hard-deletes acknowledged soft-deleted rows of every kind
// older than the cutoff. Loans go first so books and members they released
// can go in the same pass; anything still referenced by a surviving row is
// kept.
func (c *Catalog) PurgeDeleted(ctx context.Context, before time.Time) (map[entities.Kind]int64, error) {
	purged := make(map[entities.Kind]int64, len(entities.Kinds))
	steps := []struct {
		kind  entities.Kind
		purge func(context.Context, time.Time) (int64, error)
	}{
		{entities.KindLoan, c.Loans.Purge},
		{entities.KindBook, c.Books.Purge},
		{entities.KindMember, c.Members.Purge},
		{entities.KindCategory, c.Categories.Purge},
	}
	for _, step := range steps {
		n, err := step.purge(ctx, before)
		if err != nil {
			return purged, err
		}
		purged[step.kind] = n
	}
	return purged, nil
}

// Counts returns the number of active rows per kind.
func (c *Catalog) Counts(ctx context.Context) (map[entities.Kind]int64, error) {
	counts := make(map[entities.Kind]int64, len(entities.Kinds))
	for kind, count := range map[entities.Kind]func(context.Context) (int64, error){
		entities.KindCategory: c.Categories.Count,
		entities.KindBook:     c.Books.Count,
		entities.KindMember:   c.Members.Count,
		entities.KindLoan:     c.Loans.Count,
	} {
		n, err := count(ctx)
		if err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, nil
}
