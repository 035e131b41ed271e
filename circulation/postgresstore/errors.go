package postgresstore

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

var (
	// ErrBuildingQueryFailed is returned when goqu cannot render a statement.
	ErrBuildingQueryFailed = errors.New("building sql query failed")

	// ErrScanningRowFailed is returned when a result row cannot be converted into a domain snapshot.
	ErrScanningRowFailed = errors.New("scanning database row failed")

	// ErrBeginTxFailed is returned when a transaction cannot be started.
	ErrBeginTxFailed = errors.New("beginning transaction failed")

	// ErrCommitFailed is returned when a transaction cannot be committed. The transaction is rolled back then.
	ErrCommitFailed = errors.New("committing transaction failed")
)

// sqlState returns the SQLSTATE of err for both pgx and lib/pq errors, "" for any other error.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	return ""
}

// constraintName returns the violated constraint or index of err for both pgx and lib/pq errors.
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}

	return ""
}

// mapDBError translates a driver error into the circulation error taxonomy.
// Only a violation of openLoanIndex is a duplicate loan, any other unique violation is a persistence failure.
func mapDBError(err error, openLoanIndex string) error {
	switch sqlState(err) {
	case pgUniqueViolation:
		if constraintName(err) == openLoanIndex {
			return errors.Join(circulation.ErrDuplicateLoan, err)
		}

		return errors.Join(circulation.ErrPersistence, err)
	case pgCheckViolation:
		return errors.Join(circulation.ErrPersistence, circulation.ErrStockOutOfBounds, err)
	default:
		return errors.Join(circulation.ErrPersistence, err)
	}
}
