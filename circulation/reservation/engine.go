package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Engine orchestrates Borrow and Return against a circulation.Repository and serves the loan queries.
// It is safe for concurrent use as long as the Repository is.
type Engine struct {
	repo             circulation.Repository
	clock            func() time.Time
	newLoanID        func() uuid.UUID
	patronLimits     bool
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector
}

// BorrowResult is the outcome of a successful Borrow.
type BorrowResult struct {
	Loan            circulation.Loan
	AvailableCopies int
}

// ReturnResult is the outcome of a successful Return.
// StockAdjusted is false when the book no longer exists in the catalog, the loan is returned anyway.
type ReturnResult struct {
	Loan            circulation.Loan
	StockAdjusted   bool
	AvailableCopies int
}

// NewEngine creates a new Engine with optional configuration.
func NewEngine(repo circulation.Repository, options ...Option) (Engine, error) {
	if repo == nil {
		return Engine{}, circulation.ErrNilRepository
	}

	e := Engine{
		repo:      repo,
		clock:     time.Now,
		newLoanID: uuid.New,
	}

	for _, option := range options {
		if err := option(&e); err != nil {
			return Engine{}, err
		}
	}

	return e, nil
}

// Borrow lends one copy of a book to a patron.
//
// Rejections: ErrInvalidLoanDuration, ErrInvalidID, ErrBookNotFound, ErrOutOfStock, ErrDuplicateLoan and, with
// patron limits, ErrPatronNotFound, ErrPatronDisabled, ErrLoanLimitReached.
// A failed loan write yields ErrPersistence and leaves the stock untouched.
// A failed stock write after the loan write yields a *circulation.ConsistencyError.
func (e Engine) Borrow(ctx context.Context, command BorrowCommand) (BorrowResult, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, operationBorrow, map[string]string{
		logAttrPatronID: command.PatronID.String(),
		logAttrBookID:   command.BookID.String(),
	})

	result, err := e.borrow(ctx, command)

	args := []any{logAttrPatronID, command.PatronID.String(), logAttrBookID, command.BookID.String()}
	if err == nil {
		args = append(args, logAttrLoanID, result.Loan.LoanID.String())
		e.recordValue(ctx, AvailableCopiesMetric, float64(result.AvailableCopies), map[string]string{logAttrOperation: operationBorrow})
	}

	e.observe(ctx, span, operationBorrow, start, err, args...)

	return result, err
}

func (e Engine) borrow(ctx context.Context, command BorrowCommand) (BorrowResult, error) {
	if err := circulation.ValidateLoanDuration(command.DurationDays); err != nil {
		return BorrowResult{}, err
	}

	if err := validateIDs(command.PatronID, command.BookID); err != nil {
		return BorrowResult{}, err
	}

	var result BorrowResult

	ctx = circulation.WithStrongConsistency(ctx)

	err := e.repo.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		state, err := e.readBorrowState(ctx, stores, command)
		if err != nil {
			return err
		}

		decision, err := DecideBorrow(state, command, e.newLoanID(), e.clock())
		if err != nil {
			return err
		}

		if err := stores.InsertLoan(ctx, decision.Loan); err != nil {
			return asStoreError(err)
		}

		if err := stores.SetAvailableCopies(ctx, command.BookID, decision.Book.AvailableCopies); err != nil {
			return &circulation.ConsistencyError{
				Operation:  operationBorrow,
				LoanID:     decision.Loan.LoanID,
				BookID:     command.BookID,
				RolledBack: true,
				Err:        err,
			}
		}

		result = BorrowResult{Loan: decision.Loan, AvailableCopies: decision.Book.AvailableCopies}

		return nil
	})

	if err != nil {
		return BorrowResult{}, transactionError(err)
	}

	return result, nil
}

func (e Engine) readBorrowState(ctx context.Context, stores circulation.Stores, command BorrowCommand) (BorrowState, error) {
	book, err := stores.GetBook(ctx, command.BookID)
	if err != nil {
		return BorrowState{}, asStoreError(err)
	}

	_, found, err := stores.FindActiveLoan(ctx, command.PatronID, command.BookID)
	if err != nil {
		return BorrowState{}, asStoreError(err)
	}

	state := BorrowState{Book: book, HasOpenLoan: found}

	if !e.patronLimits {
		return state, nil
	}

	patron, err := stores.GetPatron(ctx, command.PatronID)
	if err != nil {
		return BorrowState{}, asStoreError(err)
	}

	openLoans, err := stores.ListActiveLoansByPatron(ctx, command.PatronID)
	if err != nil {
		return BorrowState{}, asStoreError(err)
	}

	state.Patron = &PatronState{Patron: patron, OpenLoanCount: len(openLoans)}

	return state, nil
}

// Return brings back the open loan of a patron for a book.
//
// Rejections: ErrInvalidID and ErrNoActiveLoan, in which case the stock is not touched.
// A failed loan write yields ErrPersistence.
// If the book no longer exists the return succeeds with StockAdjusted=false.
// A failed stock read or write after the loan write yields a *circulation.ConsistencyError.
func (e Engine) Return(ctx context.Context, command ReturnCommand) (ReturnResult, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, operationReturn, map[string]string{
		logAttrPatronID: command.PatronID.String(),
		logAttrBookID:   command.BookID.String(),
	})

	result, err := e.returnLoan(ctx, command)

	args := []any{logAttrPatronID, command.PatronID.String(), logAttrBookID, command.BookID.String()}
	if err == nil {
		args = append(args, logAttrLoanID, result.Loan.LoanID.String())

		if result.StockAdjusted {
			e.recordValue(ctx, AvailableCopiesMetric, float64(result.AvailableCopies), map[string]string{logAttrOperation: operationReturn})
		} else {
			e.logWarn(ctx, logMsgBookGoneOnReturn, args...)
		}
	}

	e.observe(ctx, span, operationReturn, start, err, args...)

	return result, err
}

func (e Engine) returnLoan(ctx context.Context, command ReturnCommand) (ReturnResult, error) {
	if err := validateIDs(command.PatronID, command.BookID); err != nil {
		return ReturnResult{}, err
	}

	var result ReturnResult

	ctx = circulation.WithStrongConsistency(ctx)

	err := e.repo.WithinTransaction(ctx, func(ctx context.Context, stores circulation.Stores) error {
		openLoan, found, err := stores.FindActiveLoan(ctx, command.PatronID, command.BookID)
		if err != nil {
			return asStoreError(err)
		}

		decision, err := DecideReturn(openLoan, found, e.clock())
		if err != nil {
			return err
		}

		if err := stores.MarkReturned(ctx, decision.Loan.LoanID, *decision.Loan.ReturnedAt); err != nil {
			return asStoreError(err)
		}

		result = ReturnResult{Loan: decision.Loan}

		book, err := stores.GetBook(ctx, command.BookID)
		if errors.Is(err, circulation.ErrBookNotFound) {
			return nil
		}

		if err != nil {
			return returnConsistencyError(decision.Loan.LoanID, command.BookID, err)
		}

		book = circulation.WithCopyReturned(book)

		if err := stores.SetAvailableCopies(ctx, command.BookID, book.AvailableCopies); err != nil {
			return returnConsistencyError(decision.Loan.LoanID, command.BookID, err)
		}

		result.StockAdjusted = true
		result.AvailableCopies = book.AvailableCopies

		return nil
	})

	if err != nil {
		return ReturnResult{}, transactionError(err)
	}

	return result, nil
}

func validateIDs(ids ...uuid.UUID) error {
	for _, id := range ids {
		if err := circulation.ValidateID(id); err != nil {
			return err
		}
	}

	return nil
}

func returnConsistencyError(loanID uuid.UUID, bookID uuid.UUID, err error) error {
	return &circulation.ConsistencyError{
		Operation:  operationReturn,
		LoanID:     loanID,
		BookID:     bookID,
		RolledBack: true,
		Err:        err,
	}
}

// LoansByPatron lists all loans of a patron, with Overdue derived at the current time.
// The nil UUID is rejected with ErrInvalidID, as in every per-patron and per-book query.
func (e Engine) LoansByPatron(ctx context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	return e.query(ctx, operationLoansByPatron, func(ctx context.Context) (circulation.Loans, error) {
		if err := validateIDs(patronID); err != nil {
			return nil, err
		}

		return e.repo.ListLoansByPatron(ctx, patronID)
	}, logAttrPatronID, patronID.String())
}

// ActiveLoansByPatron lists the loans a patron currently holds (Active or Overdue).
func (e Engine) ActiveLoansByPatron(ctx context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	return e.query(ctx, operationActiveLoansByPatron, func(ctx context.Context) (circulation.Loans, error) {
		if err := validateIDs(patronID); err != nil {
			return nil, err
		}

		return e.repo.ListActiveLoansByPatron(ctx, patronID)
	}, logAttrPatronID, patronID.String())
}

// AllLoans lists every loan in the system.
func (e Engine) AllLoans(ctx context.Context) (circulation.Loans, error) {
	return e.query(ctx, operationAllLoans, func(ctx context.Context) (circulation.Loans, error) {
		return e.repo.ListAllLoans(ctx)
	})
}

// LoansByBook lists all loans of a book.
func (e Engine) LoansByBook(ctx context.Context, bookID uuid.UUID) (circulation.Loans, error) {
	return e.query(ctx, operationLoansByBook, func(ctx context.Context) (circulation.Loans, error) {
		if err := validateIDs(bookID); err != nil {
			return nil, err
		}

		return e.repo.ListLoansByBook(ctx, bookID)
	}, logAttrBookID, bookID.String())
}

func (e Engine) query(
	ctx context.Context,
	operation string,
	list func(ctx context.Context) (circulation.Loans, error),
	args ...any,
) (circulation.Loans, error) {

	start := time.Now()
	ctx, span := e.startSpan(ctx, operation, map[string]string{})

	loans, err := list(ctx)
	if err != nil {
		err = asStoreError(err)
		e.observe(ctx, span, operation, start, err, args...)

		return nil, err
	}

	loans = loans.WithDerivedStatus(e.clock())
	e.observe(ctx, span, operation, start, nil, append(args, logAttrLoanCount, len(loans))...)

	return loans, nil
}

// asStoreError passes classified errors through and marks everything else as a persistence failure.
func asStoreError(err error) error {
	if circulation.IsRejection(err) || errors.Is(err, circulation.ErrPersistence) {
		return err
	}

	return errors.Join(circulation.ErrPersistence, err)
}

// transactionError finalizes an error returned by WithinTransaction.
func transactionError(err error) error {
	var consistencyErr *circulation.ConsistencyError
	if errors.As(err, &consistencyErr) && errors.Is(err, circulation.ErrRollbackFailed) {
		consistencyErr.RolledBack = false
	}

	return asStoreError(err)
}
