package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

// Loans is the loan store plus loan-specific queries. Every loan write checks
// that its book and member exist and that a book has at most one open loan.
type Loans struct {
	*Store[entities.Loan, *entities.Loan]
}

func newLoans(db *gorm.DB, log *zap.Logger) *Loans {
	s := newStore[entities.Loan](db, log, "loan_date DESC, id DESC")
	s.guard = loanGuard
	return &Loans{Store: s}
}

// Open returns active loans that have not been returned.
func (l *Loans) Open(ctx context.Context) ([]entities.Loan, error) {
	var out []entities.Loan
	err := l.db.WithContext(ctx).Scopes(active).Where("returned_at IS NULL").Order(l.order).Find(&out).Error
	if err != nil {
		return nil, l.fail("open", err)
	}
	return out, nil
}

// Overdue returns open loans whose due date is before now, most overdue first.
func (l *Loans) Overdue(ctx context.Context, now time.Time) ([]entities.Loan, error) {
	var out []entities.Loan
	err := l.db.WithContext(ctx).Scopes(active).
		Where("returned_at IS NULL AND due_date < ?", now).
		Order("due_date ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, l.fail("overdue", err)
	}
	return out, nil
}

// ForMember returns the active loan history of one member.
func (l *Loans) ForMember(ctx context.Context, memberID uint) ([]entities.Loan, error) {
	var out []entities.Loan
	err := l.db.WithContext(ctx).Scopes(active).Where("member_id = ?", memberID).Order(l.order).Find(&out).Error
	if err != nil {
		return nil, l.fail("for_member", err)
	}
	return out, nil
}

// loanGuard enforces loan integrity inside the write transaction.
//
// A loan without a server id comes from this client and must reference
// active rows and may not lend out a book that is already lent. A loan from
// the store of record only needs its rows to exist; any other open loan for
// the same book is closed as of the incoming loan date, since the store of
// record has already decided who holds the book.
func loanGuard(tx *gorm.DB, loan *entities.Loan, self uint, apply bool) error {
	if loan.IsDeleted {
		return nil
	}
	local := loan.GetID() == 0 || loan.Pending() == entities.PendingCreate

	if err := requireRow(tx, &entities.Book{}, "BookID", loan.BookID, local); err != nil {
		return err
	}
	if err := requireRow(tx, &entities.Member{}, "MemberID", loan.MemberID, local); err != nil {
		return err
	}
	if !loan.IsOpen() {
		return nil
	}

	q := tx.Model(&entities.Loan{}).Scopes(active).Where("book_id = ? AND returned_at IS NULL", loan.BookID)
	if self != 0 {
		q = q.Where("id <> ?", self)
	}
	if id := loan.GetID(); id != 0 {
		q = q.Where("id <> ?", id)
	}
	var others []uint
	if err := q.Pluck("id", &others).Error; err != nil {
		return err
	}
	if len(others) == 0 {
		return nil
	}
	if local {
		return fmt.Errorf("%w: book %d is held under loan %d", ErrBookOnLoan, loan.BookID, others[0])
	}
	if !apply {
		return nil
	}

	returnedAt := loan.LoanDate
	if returnedAt.IsZero() {
		returnedAt = time.Now()
	}
	return tx.Model(&entities.Loan{}).Where("id IN ?", others).Update("returned_at", returnedAt).Error
}

func requireRow(tx *gorm.DB, model entities.Record, field string, id uint, activeOnly bool) error {
	q := tx.Model(model).Where("id = ?", id)
	if activeOnly {
		q = q.Scopes(active)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return &ReferentialIntegrityError{Kind: entities.KindLoan, Field: field, ID: id}
	}
	return nil
}
