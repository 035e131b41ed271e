package circulation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Book is a catalog record as far as circulation is concerned: an identity and copy counts.
// Copies are not tracked individually, only as a count.
//
// Invariant: 0 <= AvailableCopies <= TotalCopies.
type Book struct {
	BookID          uuid.UUID
	TotalCopies     int
	AvailableCopies int
}

// BuildBook creates a Book snapshot and validates the stock invariant.
func BuildBook(bookID uuid.UUID, totalCopies int, availableCopies int) (Book, error) {
	book := Book{
		BookID:          bookID,
		TotalCopies:     totalCopies,
		AvailableCopies: availableCopies,
	}

	if err := book.Validate(); err != nil {
		return Book{}, err
	}

	return book, nil
}

// Validate checks the stock invariant of the snapshot.
func (b Book) Validate() error {
	if b.TotalCopies < 0 || b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return errors.Join(
			ErrStockOutOfBounds,
			fmt.Errorf("book %s: available %d, total %d", b.BookID, b.AvailableCopies, b.TotalCopies),
		)
	}

	return nil
}

// IsAvailable reports whether at least one copy of the book can be lent.
func IsAvailable(book Book) bool {
	return book.AvailableCopies > 0
}

// WithCopyLent returns a snapshot with one copy fewer available.
func WithCopyLent(book Book) (Book, error) {
	if !IsAvailable(book) {
		return book, ErrOutOfStock
	}

	book.AvailableCopies--

	return book, nil
}

// WithCopyReturned returns a snapshot with one copy more available, clamped to TotalCopies.
func WithCopyReturned(book Book) Book {
	if book.AvailableCopies < book.TotalCopies {
		book.AvailableCopies++
	}

	return book
}
