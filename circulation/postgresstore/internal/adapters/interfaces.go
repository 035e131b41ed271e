package adapters

import "context"

// Queryer runs SQL statements that were already rendered to a string.
type Queryer interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
}

// DBAdapter is a connection pool.
type DBAdapter interface {
	Queryer

	// BeginTx starts a READ COMMITTED transaction on the primary.
	BeginTx(ctx context.Context) (DBTx, error)
}

// DBTx is an open transaction.
type DBTx interface {
	Queryer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows is a result set.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult is the outcome of an execution.
type DBResult interface {
	RowsAffected() (int64, error)
}
