package adapters

import (
	"context"
	"database/sql"
)

// stdRows wraps sql.Rows, shared by the sql and sqlx adapters.
type stdRows struct {
	rows *sql.Rows
}

func (s *stdRows) Next() bool {
	return s.rows.Next()
}

func (s *stdRows) Scan(dest ...any) error {
	return s.rows.Scan(dest...)
}

func (s *stdRows) Err() error {
	return s.rows.Err()
}

func (s *stdRows) Close() error {
	return s.rows.Close()
}

type stdResult struct {
	result sql.Result
}

func (s *stdResult) RowsAffected() (int64, error) {
	return s.result.RowsAffected()
}

// stdConn is what *sql.DB, *sql.Tx, *sqlx.DB and *sqlx.Tx have in common.
type stdConn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func stdQuery(ctx context.Context, conn stdConn, query string) (DBRows, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return &stdRows{rows: rows}, nil
}

func stdExec(ctx context.Context, conn stdConn, query string) (DBResult, error) {
	result, err := conn.ExecContext(ctx, query)
	if err != nil {
		return nil, err
	}

	return &stdResult{result: result}, nil
}

// stdTx wraps *sql.Tx and *sqlx.Tx. database/sql binds the transaction to the context given to BeginTx,
// so Commit and Rollback ignore their context.
type stdTx struct {
	tx interface {
		stdConn
		Commit() error
		Rollback() error
	}
}

func (t *stdTx) Query(ctx context.Context, query string) (DBRows, error) {
	return stdQuery(ctx, t.tx, query)
}

func (t *stdTx) Exec(ctx context.Context, query string) (DBResult, error) {
	return stdExec(ctx, t.tx, query)
}

func (t *stdTx) Commit(context.Context) error {
	return t.tx.Commit()
}

func (t *stdTx) Rollback(context.Context) error {
	return t.tx.Rollback()
}

var readCommitted = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
