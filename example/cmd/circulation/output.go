package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/reservation"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitRejected    = 2
	exitConsistency = 3
	exitUsage       = 64
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type loanView struct {
	LoanID     string  `json:"loan_id"`
	PatronID   string  `json:"patron_id"`
	BookID     string  `json:"book_id"`
	BorrowedAt string  `json:"borrowed_at"`
	DueAt      string  `json:"due_at"`
	ReturnedAt *string `json:"returned_at,omitempty"`
	Status     string  `json:"status"`
}

type borrowView struct {
	Loan            loanView `json:"loan"`
	AvailableCopies int      `json:"available_copies"`
	Attempts        int      `json:"attempts"`
}

type returnView struct {
	Loan            loanView `json:"loan"`
	StockAdjusted   bool     `json:"stock_adjusted"`
	AvailableCopies *int     `json:"available_copies,omitempty"`
	Attempts        int      `json:"attempts"`
}

type errorView struct {
	Outcome    string `json:"outcome"`
	ErrorType  string `json:"error_type"`
	Message    string `json:"message"`
	LoanID     string `json:"loan_id,omitempty"`
	RolledBack *bool  `json:"rolled_back,omitempty"`
}

func toLoanView(loan circulation.Loan) loanView {
	view := loanView{
		LoanID:     loan.LoanID.String(),
		PatronID:   loan.PatronID.String(),
		BookID:     loan.BookID.String(),
		BorrowedAt: loan.BorrowedAt.Format(time.RFC3339),
		DueAt:      loan.DueAt.Format(time.RFC3339),
		Status:     loan.Status.String(),
	}

	if loan.ReturnedAt != nil {
		returnedAt := loan.ReturnedAt.Format(time.RFC3339)
		view.ReturnedAt = &returnedAt
	}

	return view
}

func toLoanViews(loans circulation.Loans) []loanView {
	views := make([]loanView, 0, len(loans))
	for _, loan := range loans {
		views = append(views, toLoanView(loan))
	}

	return views
}

func toBorrowView(result reservation.BorrowResult, attempts int) borrowView {
	return borrowView{Loan: toLoanView(result.Loan), AvailableCopies: result.AvailableCopies, Attempts: attempts}
}

func toReturnView(result reservation.ReturnResult, attempts int) returnView {
	view := returnView{Loan: toLoanView(result.Loan), StockAdjusted: result.StockAdjusted, Attempts: attempts}

	if result.StockAdjusted {
		available := result.AvailableCopies
		view.AvailableCopies = &available
	}

	return view
}

func writeJSON(w io.Writer, v any) error {
	data, err := jsonAPI.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}

// renderError writes the error for a human and returns the exit code.
// Rejections are shown verbatim. Consistency failures are escalated.
func renderError(w io.Writer, err error) int {
	view := errorView{ErrorType: circulation.ErrorType(err), Message: err.Error()}
	code := exitFailure

	var consistencyErr *circulation.ConsistencyError

	switch {
	case errors.As(err, &consistencyErr):
		rolledBack := consistencyErr.RolledBack
		view.Outcome = "escalate"
		view.LoanID = consistencyErr.LoanID.String()
		view.RolledBack = &rolledBack
		view.Message = fmt.Sprintf("loan and stock may have diverged, contact an administrator: %v", err)
		code = exitConsistency

	case circulation.IsRejection(err):
		view.Outcome = "rejected"
		code = exitRejected

	default:
		view.Outcome = "error"
	}

	if writeErr := writeJSON(w, view); writeErr != nil {
		return exitFailure
	}

	return code
}
