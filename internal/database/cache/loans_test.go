package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

func seedBookAndMembers(t *testing.T, c *Catalog) (*entities.Book, *entities.Member, *entities.Member) {
	t.Helper()
	ctx := context.Background()
	book := &entities.Book{Model: entities.Model{ID: 1}, Title: "1984", ISBN: "9780451524935"}
	require.NoError(t, c.Books.Upsert(ctx, book))
	ada := &entities.Member{Model: entities.Model{ID: 1}, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.org"}
	require.NoError(t, c.Members.Upsert(ctx, ada))
	alan := &entities.Member{Model: entities.Model{ID: 2}, FirstName: "Alan", LastName: "Turing", Email: "alan@example.org"}
	require.NoError(t, c.Members.Upsert(ctx, alan))
	return book, ada, alan
}

func newLoan(bookID, memberID uint, loanDate time.Time) entities.Loan {
	return entities.Loan{BookID: bookID, MemberID: memberID, LoanDate: loanDate, DueDate: loanDate.AddDate(0, 0, 21)}
}

func TestLoanUpsert_MissingBookLeavesStoreUnchanged(t *testing.T) {
	c, _ := setupTestCatalog(t)
	ctx := context.Background()
	_, ada, _ := seedBookAndMembers(t, c)

	loan := newLoan(404, ada.ID, time.Now())
	err := c.Loans.Upsert(ctx, &loan)
	require.Error(t, err)

	var ref *ReferentialIntegrityError
	require.True(t, errors.As(err, &ref))
	assert.Equal(t, "BookID", ref.Field)
	assert.Equal(t, uint(404), ref.ID)

	all, err := c.Loans.GetAllIncludingDeleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLoanUpsertBatch_IsAtomic(t *testing.T) {
	c, _ := setupTestCatalog(t)
	ctx := context.Background()
	book, ada, alan := seedBookAndMembers(t, c)
	other := &entities.Book{Model: entities.Model{ID: 2}, Title: "Brave New World"}
	require.NoError(t, c.Books.Upsert(ctx, other))

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	returned := base.AddDate(0, 0, 7)
	batch := []entities.Loan{
		{Model: entities.Model{ID: 10}, BookID: book.ID, MemberID: ada.ID, LoanDate: base, DueDate: base.AddDate(0, 0, 21), ReturnedAt: &returned},
		{Model: entities.Model{ID: 11}, BookID: other.ID, MemberID: alan.ID, LoanDate: base, DueDate: base.AddDate(0, 0, 21)},
		{Model: entities.Model{ID: 12}, BookID: 999, MemberID: ada.ID, LoanDate: base, DueDate: base.AddDate(0, 0, 21)},
		{Model: entities.Model{ID: 13}, BookID: book.ID, MemberID: alan.ID, LoanDate: base, DueDate: base.AddDate(0, 0, 21)},
		{Model: entities.Model{ID: 14}, BookID: book.ID, MemberID: ada.ID, LoanDate: base, DueDate: base.AddDate(0, 0, 21), ReturnedAt: &returned},
	}

	err := c.Loans.UpsertBatch(ctx, batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 3 of 5")

	n, err := c.Loans.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "no loan from the failed batch may be visible")
}

func TestLoanUpsert_OpenLoanRules(t *testing.T) {
	ctx := context.Background()

	t.Run("local loan for a lent book is rejected", func(t *testing.T) {
		c, _ := setupTestCatalog(t)
		book, ada, alan := seedBookAndMembers(t, c)

		first := newLoan(book.ID, ada.ID, time.Now())
		require.NoError(t, c.Loans.Upsert(ctx, &first))

		second := newLoan(book.ID, alan.ID, time.Now())
		err := c.Loans.Upsert(ctx, &second)
		assert.ErrorIs(t, err, ErrBookOnLoan)
		assert.ErrorIs(t, c.Loans.Check(ctx, &second), ErrBookOnLoan)
	})

	t.Run("same member re-lending merges into the open loan", func(t *testing.T) {
		c, _ := setupTestCatalog(t)
		book, ada, _ := seedBookAndMembers(t, c)

		first := newLoan(book.ID, ada.ID, time.Now())
		require.NoError(t, c.Loans.Upsert(ctx, &first))
		again := newLoan(book.ID, ada.ID, time.Now())
		again.DueDate = again.DueDate.AddDate(0, 0, 7)
		require.NoError(t, c.Loans.Upsert(ctx, &again))

		assert.Equal(t, first.ID, again.ID)
		open, err := c.Loans.Open(ctx)
		require.NoError(t, err)
		assert.Len(t, open, 1)
	})

	t.Run("server loan closes the prior open loan", func(t *testing.T) {
		c, _ := setupTestCatalog(t)
		book, ada, alan := seedBookAndMembers(t, c)

		lentAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		first := newLoan(book.ID, ada.ID, lentAt)
		first.ID = 20
		require.NoError(t, c.Loans.Upsert(ctx, &first))

		handedOver := lentAt.AddDate(0, 0, 10)
		second := newLoan(book.ID, alan.ID, handedOver)
		second.ID = 21
		require.NoError(t, c.Loans.Upsert(ctx, &second))

		open, err := c.Loans.Open(ctx)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, uint(21), open[0].ID)

		closed, err := c.Loans.Get(ctx, 20)
		require.NoError(t, err)
		require.NotNil(t, closed.ReturnedAt)
		assert.True(t, closed.ReturnedAt.Equal(handedOver))
	})

	t.Run("server loan may reference a soft-deleted book", func(t *testing.T) {
		c, _ := setupTestCatalog(t)
		book, ada, _ := seedBookAndMembers(t, c)
		require.NoError(t, c.Books.Delete(ctx, book.ID))

		history := newLoan(book.ID, ada.ID, time.Now().AddDate(-1, 0, 0))
		history.ID = 30
		assert.NoError(t, c.Loans.Upsert(ctx, &history))

		local := newLoan(book.ID, ada.ID, time.Now())
		var ref *ReferentialIntegrityError
		assert.ErrorAs(t, c.Loans.Upsert(ctx, &local), &ref)
	})
}

func TestLoans_OverdueAndForMember(t *testing.T) {
	c, _ := setupTestCatalog(t)
	ctx := context.Background()
	book, ada, alan := seedBookAndMembers(t, c)
	other := &entities.Book{Model: entities.Model{ID: 2}, Title: "Brave New World"}
	require.NoError(t, c.Books.Upsert(ctx, other))

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	late := newLoan(book.ID, ada.ID, now.AddDate(0, -2, 0))
	require.NoError(t, c.Loans.Upsert(ctx, &late))
	current := newLoan(other.ID, alan.ID, now.AddDate(0, 0, -3))
	require.NoError(t, c.Loans.Upsert(ctx, &current))

	overdue, err := c.Loans.Overdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	history, err := c.Loans.ForMember(ctx, alan.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, current.ID, history[0].ID)

	all, err := c.Loans.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, current.ID, all[0].ID, "most recent loan first")
}

func TestPurgeDeleted_KeepsBooksAndMembersWithLoans(t *testing.T) {
	c, db := setupTestCatalog(t)
	ctx := context.Background()
	book, ada, alan := seedBookAndMembers(t, c)

	lent := time.Now().AddDate(0, -2, 0)
	returned := lent.AddDate(0, 0, 14)
	loan := newLoan(book.ID, ada.ID, lent)
	loan.ID = 5
	loan.ReturnedAt = &returned
	require.NoError(t, c.Loans.Upsert(ctx, &loan))

	require.NoError(t, c.Books.Delete(ctx, book.ID))
	require.NoError(t, c.Members.Delete(ctx, ada.ID))
	require.NoError(t, c.Members.Delete(ctx, alan.ID))
	past := time.Now().Add(-48 * time.Hour)
	for _, model := range []any{&entities.Book{}, &entities.Member{}} {
		require.NoError(t, db.DB.Model(model).Where("is_deleted = ?", true).UpdateColumn("updated_at", past).Error)
	}

	purged, err := c.PurgeDeleted(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged[entities.KindBook])
	assert.Equal(t, int64(1), purged[entities.KindMember], "only the member without loans goes")

	books, err := c.Books.GetAllIncludingDeleted(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	members, err := c.Members.GetAllIncludingDeleted(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, ada.ID, members[0].ID)

	// The store of record may send the loan again; its rows must still exist.
	loan.DueDate = loan.DueDate.AddDate(0, 0, 7)
	require.NoError(t, c.Loans.Upsert(ctx, &loan))
}
