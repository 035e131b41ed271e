package main

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/memorystore"
	"github.com/AntonStoeckl/library-circulation-go/circulation/reservation"
)

const demoLoanDays = 14

type demoStep struct {
	Step            string `json:"step"`
	Outcome         string `json:"outcome"`
	ErrorType       string `json:"error_type,omitempty"`
	AvailableCopies int    `json:"available_copies"`
}

type demoReport struct {
	Steps []demoStep `json:"steps"`
	Loans []loanView `json:"loans"`
}

// runDemo plays a short circulation story against an in-memory store: two copies, three patrons.
func runDemo(ctx context.Context, out io.Writer) error {
	store := memorystore.NewStore()
	bookID := uuid.New()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	book, err := circulation.BuildBook(bookID, 2, 2)
	if err != nil {
		return err
	}

	if err := store.AddBook(book); err != nil {
		return err
	}

	engine, err := reservation.NewEngine(store, reservation.WithClock(steppingClock(time.Now())))
	if err != nil {
		return err
	}

	report := demoReport{}

	record := func(step string, err error) {
		s := demoStep{Step: step, Outcome: "ok"}
		if err != nil {
			s.Outcome = "rejected"
			s.ErrorType = circulation.ErrorType(err)
		}

		if current, ok := store.Book(bookID); ok {
			s.AvailableCopies = current.AvailableCopies
		}

		report.Steps = append(report.Steps, s)
	}

	borrow := func(step string, patronID uuid.UUID) {
		_, err := engine.Borrow(ctx, reservation.BuildBorrowCommand(patronID, bookID, demoLoanDays))
		record(step, err)
	}

	giveBack := func(step string, patronID uuid.UUID) {
		_, err := engine.Return(ctx, reservation.BuildReturnCommand(patronID, bookID))
		record(step, err)
	}

	borrow("alice borrows", alice)
	borrow("alice borrows again", alice)
	borrow("bob borrows", bob)
	borrow("carol borrows", carol)
	giveBack("alice returns", alice)
	borrow("carol borrows", carol)
	giveBack("alice returns again", alice)

	loans, err := engine.AllLoans(ctx)
	if err != nil {
		return err
	}

	report.Loans = toLoanViews(loans)

	return writeJSON(out, report)
}

// steppingClock advances one minute per reading so every step of the story has its own timestamp.
func steppingClock(start time.Time) func() time.Time {
	var calls int64

	return func() time.Time {
		calls++
		return start.Add(time.Duration(calls) * time.Minute)
	}
}
