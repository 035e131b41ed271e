package reservation

import (
	"github.com/google/uuid"
)

const (
	commandTypeBorrow = "Borrow"
	commandTypeReturn = "Return"
)

// BorrowCommand is the intent of a patron to borrow one copy of a book for DurationDays.
type BorrowCommand struct {
	PatronID     uuid.UUID
	BookID       uuid.UUID
	DurationDays int
}

// CommandType returns the type identifier used for observability.
func (c BorrowCommand) CommandType() string {
	return commandTypeBorrow
}

// BuildBorrowCommand creates a new BorrowCommand.
func BuildBorrowCommand(patronID uuid.UUID, bookID uuid.UUID, durationDays int) BorrowCommand {
	return BorrowCommand{
		PatronID:     patronID,
		BookID:       bookID,
		DurationDays: durationDays,
	}
}

// ReturnCommand is the intent of a patron to bring back a borrowed copy of a book.
type ReturnCommand struct {
	PatronID uuid.UUID
	BookID   uuid.UUID
}

// CommandType returns the type identifier used for observability.
func (c ReturnCommand) CommandType() string {
	return commandTypeReturn
}

// BuildReturnCommand creates a new ReturnCommand.
func BuildReturnCommand(patronID uuid.UUID, bookID uuid.UUID) ReturnCommand {
	return ReturnCommand{
		PatronID: patronID,
		BookID:   bookID,
	}
}
