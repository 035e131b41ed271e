// Package circulation provides the core types and collaborator contracts for book circulation
// in a small library: catalog records with copy counts, patrons, and loans.
//
// This package defines the data model shared by the reservation engine and the store
// implementations, the abstract CatalogStore, LoanStore and PatronStore contracts, the
// Transactor that groups them into one atomic unit of work, and the error taxonomy that
// every operation reports.
//
// Key types:
//   - Book: a catalog record with TotalCopies and AvailableCopies
//   - Loan: a borrow record whose Status is a small explicit state machine
//   - Patron: read-only account data (status, concurrent loan limit)
//   - LoanFilter: criteria for listing loans
//
// Books and loans are immutable snapshots. State changes are expressed as pure functions that
// take a snapshot and return a new one, for example:
//
//	lent, err := circulation.WithCopyLent(book)
//	if err != nil {
//		// circulation.ErrOutOfStock
//	}
//
//	returned := circulation.WithCopyReturned(lent) // never exceeds TotalCopies
//
// Errors are sentinel values, checked with errors.Is:
//
//	if circulation.IsRejection(err) {
//		// business rule rejection, safe to show verbatim
//	}
//
//	if circulation.IsConsistencyFailure(err) {
//		// escalate, do not retry
//	}
package circulation
