package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/mrlokans/bibliotheek/internal/database/cache"
	"github.com/mrlokans/bibliotheek/internal/entities"
)

var ErrLoanReturned = errors.New("loan already returned")

// LoanCatalog adds lending operations to the loan catalog.
type LoanCatalog struct {
	*Catalog[entities.Loan, *entities.Loan]
	loans *cache.Loans
}

// Lend records that a member borrowed a book.
func (l *LoanCatalog) Lend(ctx context.Context, bookID, memberID uint, loanDate, dueDate time.Time) (*entities.Loan, error) {
	return l.Create(ctx, &entities.Loan{
		BookID:   bookID,
		MemberID: memberID,
		LoanDate: loanDate,
		DueDate:  dueDate,
	})
}

// Return closes the loan with the given id at the given time.
func (l *LoanCatalog) Return(ctx context.Context, id uint, at time.Time) (*entities.Loan, error) {
	loan, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !loan.IsOpen() {
		return nil, ErrLoanReturned
	}
	loan.ReturnedAt = &at
	return l.Update(ctx, loan)
}

// Open returns the cached loans that have not been returned.
func (l *LoanCatalog) Open(ctx context.Context) ([]entities.Loan, error) {
	return l.loans.Open(ctx)
}

// Overdue returns the cached open loans past their due date at now.
func (l *LoanCatalog) Overdue(ctx context.Context, now time.Time) ([]entities.Loan, error) {
	return l.loans.Overdue(ctx, now)
}

// ReturnLoan closes the loan with the given id at the given time.
func (o *Orchestrator) ReturnLoan(ctx context.Context, id uint, at time.Time) (*entities.Loan, error) {
	return o.Loans.Return(ctx, id, at)
}
