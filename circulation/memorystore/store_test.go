package memorystore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/memorystore"
)

func givenBook(t *testing.T, store *memorystore.Store, total, available int) circulation.Book {
	book, err := circulation.BuildBook(uuid.New(), total, available)
	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, store.AddBook(book), "error in arranging test data")

	return book
}

func givenLoan(t *testing.T, patronID, bookID uuid.UUID, borrowedAt time.Time) circulation.Loan {
	loan, err := circulation.BuildActiveLoan(uuid.New(), patronID, bookID, borrowedAt, 14)
	require.NoError(t, err, "error in arranging test data")

	return loan
}

func Test_WithinTransaction_CommitsWhenFnSucceeds(t *testing.T) {
	// arrange
	ctx := t.Context()
	store := memorystore.NewStore()
	book := givenBook(t, store, 2, 2)
	loan := givenLoan(t, uuid.New(), book.BookID, time.Now())

	// act
	err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		if err := stores.InsertLoan(ctx, loan); err != nil {
			return err
		}

		return stores.SetAvailableCopies(ctx, book.BookID, 1)
	})

	// assert
	require.NoError(t, err)
	committed, _ := store.Book(book.BookID)
	assert.Equal(t, 1, committed.AvailableCopies)

	loans, err := store.ListAllLoans(ctx)
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

func Test_WithinTransaction_DiscardsWritesWhenFnFails(t *testing.T) {
	// arrange
	ctx := t.Context()
	store := memorystore.NewStore()
	book := givenBook(t, store, 2, 2)
	loan := givenLoan(t, uuid.New(), book.BookID, time.Now())
	failure := errors.New("second write failed")

	// act
	err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		require.NoError(t, stores.InsertLoan(ctx, loan))
		require.NoError(t, stores.SetAvailableCopies(ctx, book.BookID, 1))

		return failure
	})

	// assert
	assert.ErrorIs(t, err, failure)
	committed, _ := store.Book(book.BookID)
	assert.Equal(t, 2, committed.AvailableCopies)

	loans, err := store.ListAllLoans(ctx)
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func Test_WithinTransaction_FailsOnCanceledContext(t *testing.T) {
	// arrange
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	store := memorystore.NewStore()
	called := false

	// act
	err := store.WithinTransaction(ctx, func(context.Context, circulation.Stores) error {
		called = true
		return nil
	})

	// assert
	assert.ErrorIs(t, err, circulation.ErrPersistence)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func Test_Stores_EnforceInvariants(t *testing.T) {
	// arrange
	ctx := t.Context()
	store := memorystore.NewStore()
	book := givenBook(t, store, 1, 1)
	patronID := uuid.New()
	loan := givenLoan(t, patronID, book.BookID, time.Now())

	// act + assert
	err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		_, err := stores.GetBook(ctx, uuid.New())
		assert.ErrorIs(t, err, circulation.ErrBookNotFound)

		_, err = stores.GetPatron(ctx, patronID)
		assert.ErrorIs(t, err, circulation.ErrPatronNotFound)

		assert.ErrorIs(t, stores.SetAvailableCopies(ctx, book.BookID, 2), circulation.ErrStockOutOfBounds)
		assert.ErrorIs(t, stores.SetAvailableCopies(ctx, book.BookID, -1), circulation.ErrStockOutOfBounds)
		assert.ErrorIs(t, stores.SetAvailableCopies(ctx, uuid.New(), 0), circulation.ErrBookNotFound)

		require.NoError(t, stores.InsertLoan(ctx, loan))
		duplicate := givenLoan(t, patronID, book.BookID, time.Now())
		assert.ErrorIs(t, stores.InsertLoan(ctx, duplicate), circulation.ErrDuplicateLoan)

		found, ok, err := stores.FindActiveLoan(ctx, patronID, book.BookID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, loan.LoanID, found.LoanID)

		require.NoError(t, stores.MarkReturned(ctx, loan.LoanID, time.Now()))
		assert.ErrorIs(t, stores.MarkReturned(ctx, loan.LoanID, time.Now()), circulation.ErrNoActiveLoan)
		assert.ErrorIs(t, stores.MarkReturned(ctx, uuid.New(), time.Now()), circulation.ErrNoActiveLoan)

		_, ok, err = stores.FindActiveLoan(ctx, patronID, book.BookID)
		require.NoError(t, err)
		assert.False(t, ok)

		return nil
	})

	require.NoError(t, err)
}

func Test_ListLoans_FiltersAndOrders(t *testing.T) {
	// arrange
	ctx := t.Context()
	store := memorystore.NewStore()
	bookA := givenBook(t, store, 5, 5)
	bookB := givenBook(t, store, 5, 5)
	patron := uuid.New()
	other := uuid.New()
	start := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	second := givenLoan(t, patron, bookA.BookID, start.Add(time.Hour))
	first := givenLoan(t, patron, bookB.BookID, start)
	foreign := givenLoan(t, other, bookA.BookID, start.Add(2*time.Hour))

	err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		for _, loan := range []circulation.Loan{second, first, foreign} {
			if err := stores.InsertLoan(ctx, loan); err != nil {
				return err
			}
		}

		return stores.MarkReturned(ctx, first.LoanID, start.Add(3*time.Hour))
	})
	require.NoError(t, err, "error in arranging test data")

	// act
	byPatron, errByPatron := store.ListLoansByPatron(ctx, patron)
	activeByPatron, errActive := store.ListActiveLoansByPatron(ctx, patron)
	byBook, errByBook := store.ListLoansByBook(ctx, bookA.BookID)
	all, errAll := store.ListAllLoans(ctx)
	late, errLate := store.ListLoans(ctx, circulation.BuildLoanFilter().BorrowedFrom(start.Add(90*time.Minute)).Finalize())

	// assert
	require.NoError(t, errors.Join(errByPatron, errActive, errByBook, errAll, errLate))

	require.Len(t, byPatron, 2)
	assert.Equal(t, first.LoanID, byPatron[0].LoanID)
	assert.Equal(t, second.LoanID, byPatron[1].LoanID)

	require.Len(t, activeByPatron, 1)
	assert.Equal(t, second.LoanID, activeByPatron[0].LoanID)

	require.Len(t, byBook, 2)
	assert.Equal(t, second.LoanID, byBook[0].LoanID)
	assert.Equal(t, foreign.LoanID, byBook[1].LoanID)

	assert.Len(t, all, 3)

	require.Len(t, late, 1)
	assert.Equal(t, foreign.LoanID, late[0].LoanID)
}

func Test_AddBook_RejectsInvalidStock(t *testing.T) {
	store := memorystore.NewStore()

	err := store.AddBook(circulation.Book{BookID: uuid.New(), TotalCopies: 1, AvailableCopies: 2})

	assert.ErrorIs(t, err, circulation.ErrStockOutOfBounds)
}

func Test_AddBook_ExistingBook_KeepsLentCopiesLent(t *testing.T) {
	testCases := []struct {
		name          string
		newTotal      int
		wantAvailable int
	}{
		{name: "same total", newTotal: 2, wantAvailable: 1},
		{name: "more copies", newTotal: 4, wantAvailable: 3},
		{name: "fewer copies than lent", newTotal: 0, wantAvailable: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			ctx := t.Context()
			store := memorystore.NewStore()
			book := givenBook(t, store, 2, 2)

			err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
				return stores.SetAvailableCopies(ctx, book.BookID, 1)
			})
			require.NoError(t, err, "error in arranging test data")

			// act
			err = store.AddBook(circulation.Book{BookID: book.BookID, TotalCopies: tc.newTotal, AvailableCopies: tc.newTotal})

			// assert
			require.NoError(t, err)
			current, found := store.Book(book.BookID)
			require.True(t, found)
			assert.Equal(t, tc.newTotal, current.TotalCopies)
			assert.Equal(t, tc.wantAvailable, current.AvailableCopies)
		})
	}
}
