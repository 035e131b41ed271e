package postgresstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const openLoanIndexSuffix = "_one_open_loan_idx"

// openLoanIndexName is the unique index allowing one open loan per patron and book.
func (s Store) openLoanIndexName() string {
	return s.loansTable + openLoanIndexSuffix
}

// schemaStatements returns the DDL for the configured table names.
// Loans carry no foreign key to books so a book can leave the catalog while its loan history stays.
func (s Store) schemaStatements() []string {
	books := pgx.Identifier{s.booksTable}.Sanitize()
	loans := pgx.Identifier{s.loansTable}.Sanitize()
	patrons := pgx.Identifier{s.patronsTable}.Sanitize()
	openLoanIndex := pgx.Identifier{s.openLoanIndexName()}.Sanitize()
	patronIndex := pgx.Identifier{s.loansTable + "_patron_idx"}.Sanitize()
	bookIndex := pgx.Identifier{s.loansTable + "_book_idx"}.Sanitize()

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			book_id          UUID PRIMARY KEY,
			total_copies     INTEGER NOT NULL CHECK (total_copies >= 0),
			available_copies INTEGER NOT NULL CHECK (available_copies >= 0 AND available_copies <= total_copies)
		)`, books),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			patron_id            UUID PRIMARY KEY,
			account_status       TEXT NOT NULL,
			max_concurrent_loans INTEGER NOT NULL CHECK (max_concurrent_loans >= 0)
		)`, patrons),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			loan_id     UUID PRIMARY KEY,
			patron_id   UUID NOT NULL,
			book_id     UUID NOT NULL,
			borrowed_at TIMESTAMPTZ NOT NULL,
			due_at      TIMESTAMPTZ NOT NULL,
			returned_at TIMESTAMPTZ NULL,
			status      TEXT NOT NULL
		)`, loans),

		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (patron_id, book_id) WHERE returned_at IS NULL`,
			openLoanIndex, loans),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (patron_id, borrowed_at)`, patronIndex, loans),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (book_id, borrowed_at)`, bookIndex, loans),
	}
}

// EnsureSchema creates the tables and indexes if they do not exist yet. It is idempotent.
func (s Store) EnsureSchema(ctx context.Context) error {
	start := time.Now()

	for _, statement := range s.schemaStatements() {
		if _, err := s.execStatement(ctx, s.db, statement, logActionEnsureSchema); err != nil {
			return err
		}
	}

	s.logInfo(ctx, logMsgSchemaEnsured, logAttrDurationMS, toMilliseconds(time.Since(start)))

	return nil
}
