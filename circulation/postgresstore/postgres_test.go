package postgresstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresstore"
	"github.com/AntonStoeckl/library-circulation-go/circulation/reservation"
	"github.com/AntonStoeckl/library-circulation-go/testutil/observability/testdoubles"
	"github.com/AntonStoeckl/library-circulation-go/testutil/postgresstore/pgtesthelpers"
)

var errBoom = errors.New("boom")

func givenBook(t *testing.T, store postgresstore.Store, total, available int) uuid.UUID {
	t.Helper()

	book, err := circulation.BuildBook(uuid.New(), total, available)
	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, store.SaveBook(context.Background(), book), "error in arranging test data")

	return book.BookID
}

func availableCopies(t *testing.T, store postgresstore.Store, bookID uuid.UUID) int {
	t.Helper()

	book, err := store.FindBook(context.Background(), bookID)
	require.NoError(t, err, "error in reading the book")

	return book.AvailableCopies
}

func givenActiveLoan(t *testing.T, patronID, bookID uuid.UUID, borrowedAt time.Time) circulation.Loan {
	t.Helper()

	loan, err := circulation.BuildActiveLoan(uuid.New(), patronID, bookID, borrowedAt, 14)
	require.NoError(t, err, "error in arranging test data")

	return loan
}

func Test_WithinTransaction_Commits_WhenFnSucceeds(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()
	ctx := t.Context()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	bookID := givenBook(t, store, 2, 2)
	loan := givenActiveLoan(t, uuid.New(), bookID, time.Now())

	// act
	err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		if err := stores.InsertLoan(ctx, loan); err != nil {
			return err
		}

		return stores.SetAvailableCopies(ctx, bookID, 1)
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, availableCopies(t, store, bookID))

	loans, err := store.ListAllLoans(ctx)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, loan, loans[0])
}

func Test_WithinTransaction_RollsBack_WhenFnFails(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()
	ctx := t.Context()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	bookID := givenBook(t, store, 2, 2)
	loan := givenActiveLoan(t, uuid.New(), bookID, time.Now())

	// act
	err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		if err := stores.InsertLoan(ctx, loan); err != nil {
			return err
		}

		if err := stores.SetAvailableCopies(ctx, bookID, 1); err != nil {
			return err
		}

		return errBoom
	})

	// assert
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, circulation.ErrRollbackFailed)
	assert.Equal(t, 2, availableCopies(t, store, bookID))

	loans, err := store.ListAllLoans(ctx)
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func Test_GetBook_UnknownBook_IsNotFound(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)

	// act
	err := store.WithinTransaction(t.Context(), func(ctx context.Context, stores circulation.Stores) error {
		_, err := stores.GetBook(ctx, uuid.New())
		return err
	})

	// assert
	assert.ErrorIs(t, err, circulation.ErrBookNotFound)
}

func Test_SetAvailableCopies_OutOfBounds(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	bookID := givenBook(t, store, 2, 1)

	testCases := []struct {
		name     string
		bookID   uuid.UUID
		newCount int
		expected error
	}{
		{name: "above total copies", bookID: bookID, newCount: 3, expected: circulation.ErrStockOutOfBounds},
		{name: "negative", bookID: bookID, newCount: -1, expected: circulation.ErrStockOutOfBounds},
		{name: "unknown book", bookID: uuid.New(), newCount: 1, expected: circulation.ErrBookNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			err := store.WithinTransaction(t.Context(), func(ctx context.Context, stores circulation.Stores) error {
				return stores.SetAvailableCopies(ctx, tc.bookID, tc.newCount)
			})

			// assert
			assert.ErrorIs(t, err, tc.expected)
			assert.Equal(t, 1, availableCopies(t, store, bookID))
		})
	}
}

func Test_InsertLoan_SecondOpenLoanOfSamePair_IsDuplicateLoan(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()
	ctx := t.Context()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	patronID := uuid.New()
	bookID := givenBook(t, store, 3, 3)
	first := givenActiveLoan(t, patronID, bookID, time.Now())
	second := givenActiveLoan(t, patronID, bookID, time.Now())

	err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		return stores.InsertLoan(ctx, first)
	})
	require.NoError(t, err, "error in arranging test data")

	// act
	err = store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		return stores.InsertLoan(ctx, second)
	})

	// assert
	assert.ErrorIs(t, err, circulation.ErrDuplicateLoan)
	assert.True(t, circulation.IsRejection(err))
}

func Test_InsertLoan_SameLoanIDTwice_IsPersistenceFailure(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()
	ctx := t.Context()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	bookID := givenBook(t, store, 3, 3)
	first := givenActiveLoan(t, uuid.New(), bookID, time.Now())
	second := givenActiveLoan(t, uuid.New(), bookID, time.Now())
	second.LoanID = first.LoanID

	err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		return stores.InsertLoan(ctx, first)
	})
	require.NoError(t, err, "error in arranging test data")

	// act
	err = store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		return stores.InsertLoan(ctx, second)
	})

	// assert
	assert.ErrorIs(t, err, circulation.ErrPersistence)
	assert.NotErrorIs(t, err, circulation.ErrDuplicateLoan)
	assert.False(t, circulation.IsRejection(err))
}

func Test_SaveBook_ExistingBook_KeepsLentCopiesLent(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()
	ctx := t.Context()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	bookID := givenBook(t, store, 2, 1)

	testCases := []struct {
		name          string
		newTotal      int
		wantAvailable int
	}{
		{name: "same total", newTotal: 2, wantAvailable: 1},
		{name: "more copies", newTotal: 4, wantAvailable: 3},
		{name: "back to two", newTotal: 2, wantAvailable: 1},
		{name: "fewer copies than lent", newTotal: 0, wantAvailable: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			err := store.SaveBook(ctx, circulation.Book{BookID: bookID, TotalCopies: tc.newTotal, AvailableCopies: tc.newTotal})

			// assert
			require.NoError(t, err)
			book, err := store.FindBook(ctx, bookID)
			require.NoError(t, err)
			assert.Equal(t, tc.newTotal, book.TotalCopies)
			assert.Equal(t, tc.wantAvailable, book.AvailableCopies)
		})
	}
}

func Test_CleanUp_UsesTheConfiguredTableNames(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t,
		postgresstore.WithBooksTableName("cleanup_books"),
		postgresstore.WithLoansTableName("cleanup_loans"),
		postgresstore.WithPatronsTableName("cleanup_patrons"),
	)
	store := wrapper.GetStore()

	// arrange
	bookID := givenBook(t, store, 1, 1)

	// act
	pgtesthelpers.CleanUp(t, wrapper)

	// assert
	_, err := store.FindBook(t.Context(), bookID)
	assert.ErrorIs(t, err, circulation.ErrBookNotFound)
}

func Test_MarkReturned_Twice_IsNoActiveLoan(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()
	ctx := t.Context()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	bookID := givenBook(t, store, 1, 1)
	loan := givenActiveLoan(t, uuid.New(), bookID, time.Now())
	markReturned := func(ctx context.Context, stores circulation.Stores) error {
		return stores.MarkReturned(ctx, loan.LoanID, time.Now())
	}

	err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		return stores.InsertLoan(ctx, loan)
	})
	require.NoError(t, err, "error in arranging test data")

	// act
	firstErr := store.WithinTransaction(ctx, markReturned)
	secondErr := store.WithinTransaction(ctx, markReturned)

	// assert
	assert.NoError(t, firstErr)
	assert.ErrorIs(t, secondErr, circulation.ErrNoActiveLoan)

	loans, err := store.ListLoansByBook(ctx, bookID)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, circulation.LoanStatusReturned, loans[0].Status)
	assert.NotNil(t, loans[0].ReturnedAt)
}

func Test_ListLoans_AreOrderedByBorrowedAt_AndFiltered(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()
	ctx := t.Context()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	patronID := uuid.New()
	bookA := givenBook(t, store, 1, 1)
	bookB := givenBook(t, store, 1, 1)
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	later := givenActiveLoan(t, patronID, bookA, start.Add(time.Hour))
	earlier := givenActiveLoan(t, patronID, bookB, start)
	otherPatron := givenActiveLoan(t, uuid.New(), bookA, start.Add(2*time.Hour))

	err := store.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		for _, loan := range []circulation.Loan{later, earlier, otherPatron} {
			if err := stores.InsertLoan(ctx, loan); err != nil {
				return err
			}
		}

		return stores.MarkReturned(ctx, earlier.LoanID, start.Add(3*time.Hour))
	})
	require.NoError(t, err, "error in arranging test data")

	// act
	byPatron, byPatronErr := store.ListLoansByPatron(ctx, patronID)
	activeByPatron, activeErr := store.ListActiveLoansByPatron(ctx, patronID)
	byBook, byBookErr := store.ListLoansByBook(ctx, bookA)
	since, sinceErr := store.ListLoans(ctx, circulation.BuildLoanFilter().BorrowedFrom(start.Add(time.Hour)).Finalize())

	// assert
	require.NoError(t, errors.Join(byPatronErr, activeErr, byBookErr, sinceErr))

	require.Len(t, byPatron, 2)
	assert.Equal(t, earlier.LoanID, byPatron[0].LoanID)
	assert.Equal(t, later.LoanID, byPatron[1].LoanID)

	require.Len(t, activeByPatron, 1)
	assert.Equal(t, later.LoanID, activeByPatron[0].LoanID)

	require.Len(t, byBook, 2)
	assert.Equal(t, later.LoanID, byBook[0].LoanID)
	assert.Equal(t, otherPatron.LoanID, byBook[1].LoanID)

	require.Len(t, since, 2)
}

func Test_Engine_ConcurrentBorrowsOfLastCopy_ExactlyOneSucceeds(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()
	engine, err := reservation.NewEngine(store)
	require.NoError(t, err)

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	bookID := givenBook(t, store, 3, 1)

	const borrowers = 8
	errs := make([]error, borrowers)

	var wg sync.WaitGroup

	// act
	for i := range borrowers {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_, errs[i] = engine.Borrow(t.Context(), reservation.BuildBorrowCommand(uuid.New(), bookID, 14))
		}()
	}

	wg.Wait()

	// assert
	successes := 0

	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}

		assert.ErrorIs(t, err, circulation.ErrOutOfStock)
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, availableCopies(t, store, bookID))

	loans, err := store.ListLoansByBook(t.Context(), bookID)
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

func Test_Engine_BorrowAndReturn_RoundTrip(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()
	engine, err := reservation.NewEngine(store)
	require.NoError(t, err)
	ctx := t.Context()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	patronID := uuid.New()
	bookID := givenBook(t, store, 2, 2)

	// act
	borrowed, borrowErr := engine.Borrow(ctx, reservation.BuildBorrowCommand(patronID, bookID, 7))
	_, duplicateErr := engine.Borrow(ctx, reservation.BuildBorrowCommand(patronID, bookID, 7))
	returned, returnErr := engine.Return(ctx, reservation.BuildReturnCommand(patronID, bookID))
	_, secondReturnErr := engine.Return(ctx, reservation.BuildReturnCommand(patronID, bookID))

	// assert
	require.NoError(t, borrowErr)
	assert.Equal(t, 1, borrowed.AvailableCopies)
	assert.ErrorIs(t, duplicateErr, circulation.ErrDuplicateLoan)

	require.NoError(t, returnErr)
	assert.True(t, returned.StockAdjusted)
	assert.Equal(t, borrowed.Loan.LoanID, returned.Loan.LoanID)
	assert.Equal(t, circulation.LoanStatusReturned, returned.Loan.Status)
	assert.ErrorIs(t, secondReturnErr, circulation.ErrNoActiveLoan)
	assert.Equal(t, 2, availableCopies(t, store, bookID))
}

func Test_Engine_Return_BookDeletedFromCatalog_KeepsLoanHistory(t *testing.T) {
	// setup
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t)
	store := wrapper.GetStore()
	engine, err := reservation.NewEngine(store)
	require.NoError(t, err)
	ctx := t.Context()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	patronID := uuid.New()
	bookID := givenBook(t, store, 1, 1)
	_, err = engine.Borrow(ctx, reservation.BuildBorrowCommand(patronID, bookID, 7))
	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, store.DeleteBook(ctx, bookID), "error in arranging test data")

	// act
	result, err := engine.Return(ctx, reservation.BuildReturnCommand(patronID, bookID))

	// assert
	require.NoError(t, err)
	assert.False(t, result.StockAdjusted)

	loans, err := engine.LoansByBook(ctx, bookID)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, circulation.LoanStatusReturned, loans[0].Status)
}

func Test_Observability_StatementsAreLoggedAndMeasured(t *testing.T) {
	// setup
	logger := testdoubles.NewLoggerSpy()
	metrics := testdoubles.NewMetricsCollectorSpy()
	tracer := testdoubles.NewTracingCollectorSpy()
	wrapper := pgtesthelpers.CreateWrapperWithTestConfig(t,
		postgresstore.WithContextualLogger(logger),
		postgresstore.WithMetrics(metrics),
		postgresstore.WithTracing(tracer),
	)
	store := wrapper.GetStore()

	// arrange
	pgtesthelpers.CleanUp(t, wrapper)
	logger.Reset()

	// act
	_, err := store.ListAllLoans(t.Context())

	// assert
	require.NoError(t, err)
	assert.True(t, logger.HasLog("debug", "circulation.postgres: executed sql for: list_loans"))
	assert.True(t, logger.HasLog("info", "circulation.postgres: operation completed: list_loans"))
	assert.True(t, metrics.HasRecord(postgresstore.StatementDurationMetric, map[string]string{"action": "list_loans", "status": "success"}))
	assert.True(t, metrics.HasRecord(postgresstore.OperationDurationMetric, map[string]string{"operation": "list_loans", "status": "success"}))

	span, found := tracer.SpanNamed("circulation.postgres.list_loans")
	require.True(t, found)
	assert.True(t, span.Finished)
	assert.Equal(t, "success", span.Status)
}
