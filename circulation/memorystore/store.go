// Package memorystore provides an in-process circulation.Repository.
//
// Transactions are serialized by a single lock that is held while the TxFunc runs. The TxFunc works
// on a private copy of the state, which replaces the shared state on commit and is dropped on
// rollback. Calling WithinTransaction from inside a TxFunc deadlocks.
package memorystore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Store keeps books, patrons and loans in memory.
type Store struct {
	mu    sync.RWMutex
	state state
}

type state struct {
	books   map[uuid.UUID]circulation.Book
	patrons map[uuid.UUID]circulation.Patron
	loans   map[uuid.UUID]circulation.Loan
}

func newState() state {
	return state{
		books:   make(map[uuid.UUID]circulation.Book),
		patrons: make(map[uuid.UUID]circulation.Patron),
		loans:   make(map[uuid.UUID]circulation.Loan),
	}
}

func (s state) clone() state {
	c := state{
		books:   make(map[uuid.UUID]circulation.Book, len(s.books)),
		patrons: make(map[uuid.UUID]circulation.Patron, len(s.patrons)),
		loans:   make(map[uuid.UUID]circulation.Loan, len(s.loans)),
	}

	for id, book := range s.books {
		c.books[id] = book
	}

	for id, patron := range s.patrons {
		c.patrons[id] = patron
	}

	for id, loan := range s.loans {
		c.loans[id] = loan
	}

	return c
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// AddBook adds a book, or changes the total of an existing one.
// For an existing book the available count moves by the change in total, floored at zero,
// so copies currently lent stay lent.
func (s *Store) AddBook(book circulation.Book) error {
	if err := book.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.state.books[book.BookID]; ok {
		book.AvailableCopies = max(0, existing.AvailableCopies+book.TotalCopies-existing.TotalCopies)
	}

	s.state.books[book.BookID] = book

	return nil
}

// RemoveBook removes a book from the catalog, loans referencing it are kept.
func (s *Store) RemoveBook(bookID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.state.books, bookID)
}

// AddPatron adds or replaces a patron.
func (s *Store) AddPatron(patron circulation.Patron) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.patrons[patron.PatronID] = patron
}

// Book returns the committed snapshot of a book.
func (s *Store) Book(bookID uuid.UUID) (circulation.Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.state.books[bookID]

	return book, ok
}

// WithinTransaction implements circulation.Transactor.
func (s *Store) WithinTransaction(ctx context.Context, fn circulation.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(circulation.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()

	if err := fn(ctx, &txStores{state: &working}); err != nil {
		return err
	}

	s.state = working

	return nil
}

// ListLoansByPatron implements circulation.LoanReader.
func (s *Store) ListLoansByPatron(ctx context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	return s.list(ctx, circulation.BuildLoanFilter().ForPatron(patronID).Finalize())
}

// ListActiveLoansByPatron implements circulation.LoanReader.
func (s *Store) ListActiveLoansByPatron(ctx context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	return s.list(ctx, circulation.BuildLoanFilter().ForPatron(patronID).OnlyOpen().Finalize())
}

// ListAllLoans implements circulation.LoanReader.
func (s *Store) ListAllLoans(ctx context.Context) (circulation.Loans, error) {
	return s.list(ctx, circulation.BuildLoanFilter().Finalize())
}

// ListLoansByBook implements circulation.LoanReader.
func (s *Store) ListLoansByBook(ctx context.Context, bookID uuid.UUID) (circulation.Loans, error) {
	return s.list(ctx, circulation.BuildLoanFilter().ForBook(bookID).Finalize())
}

// ListLoans returns the committed loans matching filter.
func (s *Store) ListLoans(ctx context.Context, filter circulation.LoanFilter) (circulation.Loans, error) {
	return s.list(ctx, filter)
}

func (s *Store) list(ctx context.Context, filter circulation.LoanFilter) (circulation.Loans, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(circulation.ErrPersistence, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.loansMatching(filter), nil
}

func (s state) loansMatching(filter circulation.LoanFilter) circulation.Loans {
	loans := make(circulation.Loans, 0)

	for _, loan := range s.loans {
		if filter.Matches(loan) {
			loans = append(loans, loan)
		}
	}

	slices.SortFunc(loans, func(a, b circulation.Loan) int {
		if c := a.BorrowedAt.Compare(b.BorrowedAt); c != 0 {
			return c
		}

		return strings.Compare(a.LoanID.String(), b.LoanID.String())
	})

	return loans
}

// txStores is the circulation.Stores view on the working copy of one transaction.
type txStores struct {
	state *state
}

func (t *txStores) GetBook(_ context.Context, bookID uuid.UUID) (circulation.Book, error) {
	book, ok := t.state.books[bookID]
	if !ok {
		return circulation.Book{}, circulation.ErrBookNotFound
	}

	return book, nil
}

func (t *txStores) SetAvailableCopies(_ context.Context, bookID uuid.UUID, newCount int) error {
	book, ok := t.state.books[bookID]
	if !ok {
		return circulation.ErrBookNotFound
	}

	book.AvailableCopies = newCount
	if err := book.Validate(); err != nil {
		return errors.Join(circulation.ErrPersistence, err)
	}

	t.state.books[bookID] = book

	return nil
}

func (t *txStores) GetPatron(_ context.Context, patronID uuid.UUID) (circulation.Patron, error) {
	patron, ok := t.state.patrons[patronID]
	if !ok {
		return circulation.Patron{}, circulation.ErrPatronNotFound
	}

	return patron, nil
}

func (t *txStores) FindActiveLoan(_ context.Context, patronID uuid.UUID, bookID uuid.UUID) (circulation.Loan, bool, error) {
	for _, loan := range t.state.loans {
		if loan.PatronID == patronID && loan.BookID == bookID && loan.IsOpen() {
			return loan, true, nil
		}
	}

	return circulation.Loan{}, false, nil
}

func (t *txStores) InsertLoan(ctx context.Context, loan circulation.Loan) error {
	if _, exists := t.state.loans[loan.LoanID]; exists {
		return errors.Join(circulation.ErrPersistence, fmt.Errorf("loan %s already exists", loan.LoanID))
	}

	if _, found, _ := t.FindActiveLoan(ctx, loan.PatronID, loan.BookID); found && loan.IsOpen() {
		return circulation.ErrDuplicateLoan
	}

	t.state.loans[loan.LoanID] = loan

	return nil
}

func (t *txStores) MarkReturned(_ context.Context, loanID uuid.UUID, returnedAt time.Time) error {
	loan, ok := t.state.loans[loanID]
	if !ok {
		return circulation.ErrNoActiveLoan
	}

	returned, err := circulation.MarkedReturned(loan, returnedAt)
	if err != nil {
		return err
	}

	t.state.loans[loanID] = returned

	return nil
}

func (t *txStores) ListLoansByPatron(_ context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	return t.state.loansMatching(circulation.BuildLoanFilter().ForPatron(patronID).Finalize()), nil
}

func (t *txStores) ListActiveLoansByPatron(_ context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	return t.state.loansMatching(circulation.BuildLoanFilter().ForPatron(patronID).OnlyOpen().Finalize()), nil
}

func (t *txStores) ListAllLoans(_ context.Context) (circulation.Loans, error) {
	return t.state.loansMatching(circulation.BuildLoanFilter().Finalize()), nil
}

func (t *txStores) ListLoansByBook(_ context.Context, bookID uuid.UUID) (circulation.Loans, error) {
	return t.state.loansMatching(circulation.BuildLoanFilter().ForBook(bookID).Finalize()), nil
}
