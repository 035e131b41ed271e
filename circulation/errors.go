package circulation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Business rule rejections. These are terminal outcomes and safe to show to a user verbatim.
var (
	// ErrBookNotFound is returned when the referenced book does not exist in the catalog.
	ErrBookNotFound = errors.New("book not found")

	// ErrOutOfStock is returned when a book has no available copies left.
	ErrOutOfStock = errors.New("book is out of stock")

	// ErrDuplicateLoan is returned when the patron already holds an open loan of the same book.
	ErrDuplicateLoan = errors.New("patron already has an open loan of this book")

	// ErrNoActiveLoan is returned when there is no open loan for the patron and book.
	ErrNoActiveLoan = errors.New("no active loan for this patron and book")

	// ErrInvalidID is returned when a patron or book id is the nil UUID.
	ErrInvalidID = errors.New("patron and book ids must not be the nil uuid")

	// ErrInvalidLoanDuration is returned when the loan duration is outside the allowed policy range.
	ErrInvalidLoanDuration = errors.New("loan duration must be between 1 and 365 days")

	// ErrPatronNotFound is returned when patron limits are enforced and the patron does not exist.
	ErrPatronNotFound = errors.New("patron not found")

	// ErrPatronDisabled is returned when patron limits are enforced and the account is disabled.
	ErrPatronDisabled = errors.New("patron account is disabled")

	// ErrLoanLimitReached is returned when patron limits are enforced and the patron holds the maximum number of loans.
	ErrLoanLimitReached = errors.New("patron has reached the maximum number of concurrent loans")
)

// Infrastructure failures.
var (
	// ErrPersistence is returned when a store is unreachable or rejects a read or write.
	// The engine never retries these, retry policy belongs to the caller.
	ErrPersistence = errors.New("persistence failure")

	// ErrConsistencyFailure is returned when the second write of a two-write sequence failed
	// after the first one succeeded. It must be escalated, not retried silently.
	ErrConsistencyFailure = errors.New("loan and stock state diverged")

	// ErrRollbackFailed is joined to a transaction error when the rollback itself failed.
	ErrRollbackFailed = errors.New("transaction rollback failed")

	// ErrStockOutOfBounds is returned when a stock count would leave the range 0..TotalCopies.
	ErrStockOutOfBounds = errors.New("available copies out of bounds")

	// ErrNilRepository is returned when a nil repository is passed to a constructor.
	ErrNilRepository = errors.New("repository must not be nil")

	// ErrNilDatabaseConnection is returned when a nil database connection is passed to a store constructor.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when an empty table name is configured.
	ErrEmptyTableName = errors.New("table name must not be empty")
)

var rejections = []error{
	ErrBookNotFound,
	ErrOutOfStock,
	ErrDuplicateLoan,
	ErrNoActiveLoan,
	ErrInvalidID,
	ErrInvalidLoanDuration,
	ErrPatronNotFound,
	ErrPatronDisabled,
	ErrLoanLimitReached,
}

// ConsistencyError reports that loan state and stock state may have diverged:
// the loan write of a Borrow or Return succeeded but the stock write did not.
//
// RolledBack tells whether the enclosing transaction undid the loan write.
// When it is false the divergence is persisted and needs manual repair.
type ConsistencyError struct {
	Operation  string
	LoanID     uuid.UUID
	BookID     uuid.UUID
	RolledBack bool
	Err        error
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf(
		"%s: %s (loan %s, book %s, rolled back: %t): %v",
		e.Operation, ErrConsistencyFailure, e.LoanID, e.BookID, e.RolledBack, e.Err,
	)
}

// Unwrap makes the error match ErrConsistencyFailure, ErrPersistence and the underlying cause.
func (e *ConsistencyError) Unwrap() []error {
	return []error{ErrConsistencyFailure, ErrPersistence, e.Err}
}

// ValidateID rejects the nil UUID, which listing filters would read as "any".
func ValidateID(id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrInvalidID
	}

	return nil
}

// IsRejection reports whether err is a business rule rejection.
func IsRejection(err error) bool {
	if err == nil || IsConsistencyFailure(err) {
		return false
	}

	for _, rejection := range rejections {
		if errors.Is(err, rejection) {
			return true
		}
	}

	return false
}

// IsConsistencyFailure reports whether err signals diverged loan and stock state.
func IsConsistencyFailure(err error) bool {
	return errors.Is(err, ErrConsistencyFailure)
}

// IsTransient reports whether err is a persistence failure that a caller may retry with its own backoff.
// Consistency failures are never transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrPersistence) && !IsConsistencyFailure(err) && !IsRejection(err)
}

// ErrorType returns a short classification of err for metric labels and logs.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsConsistencyFailure(err):
		return "consistency_failure"
	case errors.Is(err, ErrBookNotFound):
		return "not_found"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrDuplicateLoan):
		return "duplicate_loan"
	case errors.Is(err, ErrNoActiveLoan):
		return "no_active_loan"
	case errors.Is(err, ErrInvalidID):
		return "invalid_id"
	case errors.Is(err, ErrInvalidLoanDuration):
		return "invalid_duration"
	case errors.Is(err, ErrPatronNotFound):
		return "patron_not_found"
	case errors.Is(err, ErrPatronDisabled):
		return "patron_disabled"
	case errors.Is(err, ErrLoanLimitReached):
		return "loan_limit_reached"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}
