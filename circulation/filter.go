package circulation

import (
	"time"

	"github.com/google/uuid"
)

/***** LoanFilter *****/

// LoanFilter holds the criteria for listing loans. All criteria are combined with AND.
// A zero LoanFilter matches every loan.
type LoanFilter struct {
	patronID      uuid.UUID
	bookID        uuid.UUID
	onlyOpen      bool
	borrowedFrom  time.Time
	borrowedUntil time.Time
}

// PatronID returns the patron criterion, uuid.Nil if none is set.
func (f LoanFilter) PatronID() uuid.UUID {
	return f.patronID
}

// BookID returns the book criterion, uuid.Nil if none is set.
func (f LoanFilter) BookID() uuid.UUID {
	return f.bookID
}

// OnlyOpen reports whether only loans that are not yet returned match.
func (f LoanFilter) OnlyOpen() bool {
	return f.onlyOpen
}

// BorrowedFrom returns the lower bound for BorrowedAt, the zero time if none is set.
func (f LoanFilter) BorrowedFrom() time.Time {
	return f.borrowedFrom
}

// BorrowedUntil returns the upper bound for BorrowedAt, the zero time if none is set.
func (f LoanFilter) BorrowedUntil() time.Time {
	return f.borrowedUntil
}

// Matches applies the filter to a single loan. Stores that cannot push the filter down use it.
func (f LoanFilter) Matches(loan Loan) bool {
	if f.patronID != uuid.Nil && loan.PatronID != f.patronID {
		return false
	}

	if f.bookID != uuid.Nil && loan.BookID != f.bookID {
		return false
	}

	if f.onlyOpen && !loan.IsOpen() {
		return false
	}

	if !f.borrowedFrom.IsZero() && loan.BorrowedAt.Before(f.borrowedFrom) {
		return false
	}

	if !f.borrowedUntil.IsZero() && loan.BorrowedAt.After(f.borrowedUntil) {
		return false
	}

	return true
}

/***** LoanFilterBuilder *****/

// LoanFilterBuilder builds a LoanFilter to be used by store implementations to build queries for
// their specific query language.
//
// Empty criteria (uuid.Nil ids, zero times) are ignored, so a builder can be fed optional input directly.
type LoanFilterBuilder interface {
	// ForPatron restricts the filter to loans of one patron.
	ForPatron(patronID uuid.UUID) LoanFilterBuilder

	// ForBook restricts the filter to loans of one book.
	ForBook(bookID uuid.UUID) LoanFilterBuilder

	// OnlyOpen restricts the filter to loans that are Active or Overdue.
	OnlyOpen() LoanFilterBuilder

	// BorrowedFrom restricts the filter to loans borrowed at or after the given time.
	BorrowedFrom(t time.Time) LoanFilterBuilder

	// BorrowedUntil restricts the filter to loans borrowed at or before the given time.
	BorrowedUntil(t time.Time) LoanFilterBuilder

	// Finalize returns the immutable LoanFilter.
	Finalize() LoanFilter
}

type loanFilterBuilder struct {
	filter LoanFilter
}

// BuildLoanFilter starts a new LoanFilter.
func BuildLoanFilter() LoanFilterBuilder {
	return loanFilterBuilder{}
}

func (b loanFilterBuilder) ForPatron(patronID uuid.UUID) LoanFilterBuilder {
	b.filter.patronID = patronID
	return b
}

func (b loanFilterBuilder) ForBook(bookID uuid.UUID) LoanFilterBuilder {
	b.filter.bookID = bookID
	return b
}

func (b loanFilterBuilder) OnlyOpen() LoanFilterBuilder {
	b.filter.onlyOpen = true
	return b
}

func (b loanFilterBuilder) BorrowedFrom(t time.Time) LoanFilterBuilder {
	if !t.IsZero() {
		b.filter.borrowedFrom = ToTimestamp(t)
	}

	return b
}

func (b loanFilterBuilder) BorrowedUntil(t time.Time) LoanFilterBuilder {
	if !t.IsZero() {
		b.filter.borrowedUntil = ToTimestamp(t)
	}

	return b
}

func (b loanFilterBuilder) Finalize() LoanFilter {
	return b.filter
}
