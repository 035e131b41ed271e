package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CatalogStore gives access to the stock counts of books.
type CatalogStore interface {
	// GetBook returns ErrBookNotFound when the book does not exist.
	GetBook(ctx context.Context, bookID uuid.UUID) (Book, error)

	// SetAvailableCopies overwrites the available count. It returns ErrStockOutOfBounds when
	// newCount is outside 0..TotalCopies and ErrBookNotFound when the book does not exist.
	SetAvailableCopies(ctx context.Context, bookID uuid.UUID, newCount int) error
}

// LoanReader lists loans. Listings are ordered by BorrowedAt, then LoanID.
type LoanReader interface {
	ListLoansByPatron(ctx context.Context, patronID uuid.UUID) (Loans, error)
	ListActiveLoansByPatron(ctx context.Context, patronID uuid.UUID) (Loans, error)
	ListAllLoans(ctx context.Context) (Loans, error)
	ListLoansByBook(ctx context.Context, bookID uuid.UUID) (Loans, error)
}

// LoanStore gives access to loan records.
type LoanStore interface {
	LoanReader

	// FindActiveLoan returns the open loan of the patron for the book, found=false if there is none.
	FindActiveLoan(ctx context.Context, patronID uuid.UUID, bookID uuid.UUID) (loan Loan, found bool, err error)

	// InsertLoan returns ErrDuplicateLoan when the patron already holds an open loan of the book.
	InsertLoan(ctx context.Context, loan Loan) error

	// MarkReturned returns ErrNoActiveLoan when the loan does not exist or is already returned.
	MarkReturned(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error
}

// PatronStore gives read access to patron accounts.
type PatronStore interface {
	// GetPatron returns ErrPatronNotFound when the patron does not exist.
	GetPatron(ctx context.Context, patronID uuid.UUID) (Patron, error)
}

// Stores is the view of all stores inside one transaction.
type Stores interface {
	CatalogStore
	LoanStore
	PatronStore
}

// TxFunc is the unit of work run by a Transactor.
type TxFunc func(ctx context.Context, stores Stores) error

// Transactor runs a TxFunc atomically. Units of work touching the same book or the same
// (patron, book) pair are serialized.
//
// The transaction commits when fn returns nil and rolls back otherwise. The error of fn is returned
// as is. When the rollback fails, the returned error additionally matches ErrRollbackFailed.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn TxFunc) error
}

// Repository is what the reservation engine needs: transactions for Borrow and Return,
// plain reads for the loan queries.
type Repository interface {
	Transactor
	LoanReader
}
