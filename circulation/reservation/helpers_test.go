package reservation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/memorystore"
	"github.com/AntonStoeckl/library-circulation-go/circulation/reservation"
)

var fixedNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

// fakeClock is a settable clock for the engine.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func givenEngine(t *testing.T, repo circulation.Repository, options ...reservation.Option) reservation.Engine {
	engine, err := reservation.NewEngine(repo, options...)
	require.NoError(t, err, "error in arranging the engine")

	return engine
}

func givenBook(t *testing.T, store *memorystore.Store, total, available int) uuid.UUID {
	book, err := circulation.BuildBook(uuid.New(), total, available)
	require.NoError(t, err, "error in arranging test data")
	require.NoError(t, store.AddBook(book), "error in arranging test data")

	return book.BookID
}

func availableCopies(t *testing.T, store *memorystore.Store, bookID uuid.UUID) int {
	book, ok := store.Book(bookID)
	require.True(t, ok, "book %s does not exist", bookID)

	return book.AvailableCopies
}

// faultyRepository decorates a Repository and injects failures into the stores seen inside a transaction.
type faultyRepository struct {
	circulation.Repository
	faults         faults
	rollbackFailed bool
}

type faults struct {
	getBook            error
	getBookAfterWrites error
	insertLoan         error
	markReturned       error
	setAvailable       error
	listByPatron       error
}

func (r faultyRepository) WithinTransaction(ctx context.Context, fn circulation.TxFunc) error {
	err := r.Repository.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		return fn(ctx, &faultyStores{Stores: stores, faults: r.faults})
	})

	if err != nil && r.rollbackFailed {
		return errors.Join(err, circulation.ErrRollbackFailed)
	}

	return err
}

func (r faultyRepository) ListLoansByPatron(ctx context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	if r.faults.listByPatron != nil {
		return nil, r.faults.listByPatron
	}

	return r.Repository.ListLoansByPatron(ctx, patronID)
}

type faultyStores struct {
	circulation.Stores
	faults faults
	wrote  bool
}

func (s *faultyStores) GetBook(ctx context.Context, bookID uuid.UUID) (circulation.Book, error) {
	if s.faults.getBook != nil {
		return circulation.Book{}, s.faults.getBook
	}

	if s.wrote && s.faults.getBookAfterWrites != nil {
		return circulation.Book{}, s.faults.getBookAfterWrites
	}

	return s.Stores.GetBook(ctx, bookID)
}

func (s *faultyStores) InsertLoan(ctx context.Context, loan circulation.Loan) error {
	if s.faults.insertLoan != nil {
		return s.faults.insertLoan
	}

	s.wrote = true

	return s.Stores.InsertLoan(ctx, loan)
}

func (s *faultyStores) MarkReturned(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error {
	if s.faults.markReturned != nil {
		return s.faults.markReturned
	}

	s.wrote = true

	return s.Stores.MarkReturned(ctx, loanID, returnedAt)
}

func (s *faultyStores) SetAvailableCopies(ctx context.Context, bookID uuid.UUID, newCount int) error {
	if s.faults.setAvailable != nil {
		return s.faults.setAvailable
	}

	return s.Stores.SetAvailableCopies(ctx, bookID, newCount)
}
