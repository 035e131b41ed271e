// Package reservation implements the borrow/return reservation engine.
//
// The Engine decides whether a loan may proceed, records the loan state transition and adjusts the
// available copy count of the book. Each Borrow and Return runs as one unit of work inside a
// circulation.Transactor, so the availability check, the duplicate loan check, the loan write and
// the stock write are all-or-nothing and serialized per book.
//
// The business rules are pure functions (DecideBorrow, DecideReturn) that take snapshots and
// return new snapshots or a rejection. The Engine only orchestrates reads, decisions and writes.
//
// The Engine never retries. Rejections are terminal, persistence failures are reported with
// circulation.ErrPersistence, and a failed stock write after a successful loan write is reported
// as a *circulation.ConsistencyError.
//
// Example:
//
//	engine, err := reservation.NewEngine(store, reservation.WithLogger(slog.Default()))
//	if err != nil {
//		return err
//	}
//
//	result, err := engine.Borrow(ctx, reservation.BuildBorrowCommand(patronID, bookID, 30))
package reservation
