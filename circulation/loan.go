package circulation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// MinLoanDurationDays is the shortest loan a patron can take out.
	MinLoanDurationDays = 1

	// MaxLoanDurationDays is the longest loan a patron can take out.
	MaxLoanDurationDays = 365
)

// LoanStatus is the state of a Loan.
//
// Transitions:
//
//	Active -> Returned  (by a successful Return)
//	Active -> Overdue   (derived at read time when DueAt has passed, never stored by the engine)
//
// Returned is terminal.
type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "active"
	LoanStatusReturned LoanStatus = "returned"
	LoanStatusOverdue  LoanStatus = "overdue"
)

// ParseLoanStatus converts a stored status value into a LoanStatus.
func ParseLoanStatus(s string) (LoanStatus, error) {
	switch LoanStatus(s) {
	case LoanStatusActive, LoanStatusReturned, LoanStatusOverdue:
		return LoanStatus(s), nil
	default:
		return "", fmt.Errorf("unknown loan status %q", s)
	}
}

// IsOpen reports whether the status counts as a copy still checked out.
func (s LoanStatus) IsOpen() bool {
	return s == LoanStatusActive || s == LoanStatusOverdue
}

// String implements fmt.Stringer.
func (s LoanStatus) String() string {
	return string(s)
}

// Loan is one borrow of one copy of a Book by a Patron.
// At most one open (Active or Overdue) Loan exists per (PatronID, BookID) at any time.
type Loan struct {
	LoanID     uuid.UUID
	PatronID   uuid.UUID
	BookID     uuid.UUID
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
	Status     LoanStatus
}

// BuildActiveLoan creates a new Active Loan that is due durationDays after borrowedAt.
func BuildActiveLoan(
	loanID uuid.UUID,
	patronID uuid.UUID,
	bookID uuid.UUID,
	borrowedAt time.Time,
	durationDays int,
) (Loan, error) {

	if err := ValidateLoanDuration(durationDays); err != nil {
		return Loan{}, err
	}

	borrowedAt = ToTimestamp(borrowedAt)

	return Loan{
		LoanID:     loanID,
		PatronID:   patronID,
		BookID:     bookID,
		BorrowedAt: borrowedAt,
		DueAt:      DueAtFor(borrowedAt, durationDays),
		Status:     LoanStatusActive,
	}, nil
}

// ValidateLoanDuration checks the loan duration policy.
func ValidateLoanDuration(durationDays int) error {
	if durationDays < MinLoanDurationDays || durationDays > MaxLoanDurationDays {
		return ErrInvalidLoanDuration
	}

	return nil
}

// DueAtFor returns the due time for a loan taken out at borrowedAt for durationDays calendar days.
func DueAtFor(borrowedAt time.Time, durationDays int) time.Time {
	return ToTimestamp(borrowedAt.AddDate(0, 0, durationDays))
}

// IsOpen reports whether the loan has not been returned yet.
func (l Loan) IsOpen() bool {
	return l.ReturnedAt == nil && l.Status.IsOpen()
}

// StatusAt returns the status of the loan as seen at the given time.
// An Active loan whose due date has passed reads as Overdue.
func StatusAt(loan Loan, now time.Time) LoanStatus {
	if loan.Status == LoanStatusActive && loan.DueAt.Before(now) {
		return LoanStatusOverdue
	}

	return loan.Status
}

// MarkedReturned returns a snapshot of the loan in status Returned.
func MarkedReturned(loan Loan, returnedAt time.Time) (Loan, error) {
	if !loan.IsOpen() {
		return loan, ErrNoActiveLoan
	}

	ts := ToTimestamp(returnedAt)
	loan.ReturnedAt = &ts
	loan.Status = LoanStatusReturned

	return loan, nil
}

// Loans is a collection of Loan snapshots.
type Loans []Loan

// Open returns the loans that are still checked out.
func (ls Loans) Open() Loans {
	open := make(Loans, 0, len(ls))

	for _, loan := range ls {
		if loan.IsOpen() {
			open = append(open, loan)
		}
	}

	return open
}

// WithDerivedStatus returns a copy in which every status reflects the given time.
func (ls Loans) WithDerivedStatus(now time.Time) Loans {
	derived := make(Loans, len(ls))

	for i, loan := range ls {
		loan.Status = StatusAt(loan, now)
		derived[i] = loan
	}

	return derived
}
