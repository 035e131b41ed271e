// Package postgresstore provides a PostgreSQL implementation of circulation.Repository.
//
// The store supports three connection types:
//   - pgxpool.Pool, optionally with a replica pool for loan listings under eventual consistency
//   - sql.DB, for example opened with the lib/pq driver
//   - sqlx.DB
//
// Each Borrow or Return runs in one READ COMMITTED transaction. GetBook and FindActiveLoan lock the
// rows they return with SELECT ... FOR UPDATE, so concurrent operations on the same book or the same
// open loan are serialized. A partial unique index on loans (patron_id, book_id) WHERE returned_at IS NULL
// and CHECK constraints on books back the invariants at the database level.
//
// All SQL is built with goqu using the postgres dialect. EnsureSchema creates the tables and indexes.
//
// Basic usage:
//
//	store, err := postgresstore.NewStoreFromPGXPool(pool)
//	if err != nil {
//		return err
//	}
//
//	if err := store.EnsureSchema(ctx); err != nil {
//		return err
//	}
//
//	engine, err := reservation.NewEngine(store)
package postgresstore
