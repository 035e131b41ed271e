package reservation

import (
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// BorrowState is everything DecideBorrow needs to know, read inside the transaction.
type BorrowState struct {
	Book        circulation.Book
	HasOpenLoan bool

	// Patron is nil unless patron limits are enforced.
	Patron *PatronState
}

// PatronState is the patron account together with the number of loans the patron holds right now.
type PatronState struct {
	Patron        circulation.Patron
	OpenLoanCount int
}

// BorrowDecision holds the snapshots a successful Borrow writes.
type BorrowDecision struct {
	Loan circulation.Loan
	Book circulation.Book
}

// ReturnDecision holds the loan snapshot a successful Return writes.
type ReturnDecision struct {
	Loan circulation.Loan
}

// DecideBorrow implements the business rules for lending one copy of a book to a patron.
// This is a pure function, it returns the loan to insert and the book with one copy fewer available.
//
// Business Rules:
//
//	GIVEN: a book and the open loan state of (patron, book)
//	WHEN: a BorrowCommand is received
//	THEN: a new Active loan due after DurationDays is created and AvailableCopies decreases by one
//	ERROR: ErrInvalidLoanDuration if DurationDays is outside 1..365
//	ERROR: ErrOutOfStock if no copy is available
//	ERROR: ErrDuplicateLoan if the patron already holds an open loan of the book
//	ERROR: ErrPatronDisabled, ErrLoanLimitReached if patron limits are enforced and violated
func DecideBorrow(state BorrowState, command BorrowCommand, loanID uuid.UUID, now time.Time) (BorrowDecision, error) {
	if err := circulation.ValidateLoanDuration(command.DurationDays); err != nil {
		return BorrowDecision{}, err
	}

	book, err := circulation.WithCopyLent(state.Book)
	if err != nil {
		return BorrowDecision{}, err
	}

	if state.HasOpenLoan {
		return BorrowDecision{}, circulation.ErrDuplicateLoan
	}

	if state.Patron != nil {
		if err := circulation.CheckMayBorrow(state.Patron.Patron, state.Patron.OpenLoanCount); err != nil {
			return BorrowDecision{}, err
		}
	}

	loan, err := circulation.BuildActiveLoan(loanID, command.PatronID, command.BookID, now, command.DurationDays)
	if err != nil {
		return BorrowDecision{}, err
	}

	return BorrowDecision{Loan: loan, Book: book}, nil
}

// DecideReturn implements the business rules for bringing back a borrowed copy.
//
//	GIVEN: the open loan of (patron, book), if any
//	WHEN: a ReturnCommand is received
//	THEN: the loan is Returned at now
//	ERROR: ErrNoActiveLoan if there is no open loan
//
// The stock side of a return is circulation.WithCopyReturned, applied only if the book still exists.
func DecideReturn(openLoan circulation.Loan, found bool, now time.Time) (ReturnDecision, error) {
	if !found {
		return ReturnDecision{}, circulation.ErrNoActiveLoan
	}

	loan, err := circulation.MarkedReturned(openLoan, now)
	if err != nil {
		return ReturnDecision{}, err
	}

	return ReturnDecision{Loan: loan}, nil
}
