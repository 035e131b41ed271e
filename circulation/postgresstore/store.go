package postgresstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresstore/internal/adapters"
)

const (
	defaultBooksTableName   = "books"
	defaultLoansTableName   = "loans"
	defaultPatronsTableName = "patrons"

	dialectPostgres = "postgres"

	colBookID             = "book_id"
	colTotalCopies        = "total_copies"
	colAvailableCopies    = "available_copies"
	colPatronID           = "patron_id"
	colAccountStatus      = "account_status"
	colMaxConcurrentLoans = "max_concurrent_loans"
	colLoanID             = "loan_id"
	colBorrowedAt         = "borrowed_at"
	colDueAt              = "due_at"
	colReturnedAt         = "returned_at"
	colStatus             = "status"

	castIDAsText = "?::text"
)

// Store is a circulation.Repository on PostgreSQL.
type Store struct {
	db               adapters.DBAdapter
	booksTable       string
	loansTable       string
	patronsTable     string
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector
}

// NewStoreFromPGXPool creates a new Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options)
}

// NewStoreFromPGXPoolWithReplica creates a new Store using a primary and a replica pgx Pool.
// Loan listings go to the replica when the context carries circulation.WithEventualConsistency.
// Transactions always use the primary.
func NewStoreFromPGXPoolWithReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, circulation.ErrNilDatabaseConnection
	}

	if replica == nil {
		return newStore(adapters.NewPGXAdapter(db), options)
	}

	return newStore(adapters.NewPGXAdapterWithReplica(db, replica), options)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options)
}

func newStore(db adapters.DBAdapter, options []Option) (Store, error) {
	s := Store{
		db:           db,
		booksTable:   defaultBooksTableName,
		loansTable:   defaultLoansTableName,
		patronsTable: defaultPatronsTableName,
	}

	for _, option := range options {
		if err := option(&s); err != nil {
			return Store{}, err
		}
	}

	return s, nil
}

// TableNames returns the configured books, loans and patrons table names, in that order.
func (s Store) TableNames() []string {
	return []string{s.booksTable, s.loansTable, s.patronsTable}
}

/***** Transactions *****/

// WithinTransaction implements circulation.Transactor.
func (s Store) WithinTransaction(ctx context.Context, fn circulation.TxFunc) (err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, operationTransaction)

	defer func() {
		s.finishOperation(ctx, span, operationTransaction, time.Since(start), err)
	}()

	tx, beginErr := s.db.BeginTx(ctx)
	if beginErr != nil {
		return errors.Join(circulation.ErrPersistence, ErrBeginTxFailed, beginErr)
	}

	committed := false

	defer func() {
		if committed {
			return
		}

		// context.WithoutCancel lets the rollback reach the database after ctx was canceled.
		rollbackErr := tx.Rollback(context.WithoutCancel(ctx))

		switch {
		case rollbackErr == nil:
		case alreadyRolledBack(ctx, rollbackErr):
			s.logWarn(ctx, logMsgRollbackSkipped, logAttrError, rollbackErr.Error())
		default:
			s.logError(ctx, logMsgRollbackFailed, rollbackErr)
			err = errors.Join(err, circulation.ErrRollbackFailed, rollbackErr)
		}
	}()

	if fnErr := fn(ctx, txStores{store: s, q: tx}); fnErr != nil {
		return fnErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return errors.Join(circulation.ErrPersistence, ErrCommitFailed, commitErr)
	}

	committed = true

	return nil
}

// alreadyRolledBack reports whether a failed rollback means the transaction was gone already.
// database/sql rolls back on context cancellation and pgx closes the connection, which makes the
// server abort the transaction.
func alreadyRolledBack(ctx context.Context, rollbackErr error) bool {
	return errors.Is(rollbackErr, sql.ErrTxDone) ||
		errors.Is(rollbackErr, pgx.ErrTxClosed) ||
		ctx.Err() != nil
}

// txStores is the circulation.Stores view on one open transaction.
type txStores struct {
	store Store
	q     adapters.Queryer
}

func (t txStores) GetBook(ctx context.Context, bookID uuid.UUID) (circulation.Book, error) {
	return t.store.getBook(ctx, t.q, bookID, true)
}

func (t txStores) SetAvailableCopies(ctx context.Context, bookID uuid.UUID, newCount int) error {
	return t.store.setAvailableCopies(ctx, t.q, bookID, newCount)
}

func (t txStores) GetPatron(ctx context.Context, patronID uuid.UUID) (circulation.Patron, error) {
	return t.store.getPatron(ctx, t.q, patronID)
}

// FindActiveLoan locks the book row before the loan row, Borrow and Return then acquire locks in the same order.
func (t txStores) FindActiveLoan(ctx context.Context, patronID uuid.UUID, bookID uuid.UUID) (circulation.Loan, bool, error) {
	if _, err := t.store.getBook(ctx, t.q, bookID, true); err != nil && !errors.Is(err, circulation.ErrBookNotFound) {
		return circulation.Loan{}, false, err
	}

	return t.store.findActiveLoan(ctx, t.q, patronID, bookID)
}

func (t txStores) InsertLoan(ctx context.Context, loan circulation.Loan) error {
	return t.store.insertLoan(ctx, t.q, loan)
}

func (t txStores) MarkReturned(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error {
	return t.store.markReturned(ctx, t.q, loanID, returnedAt)
}

func (t txStores) ListLoansByPatron(ctx context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	return t.store.listLoans(ctx, t.q, circulation.BuildLoanFilter().ForPatron(patronID).Finalize())
}

func (t txStores) ListActiveLoansByPatron(ctx context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	return t.store.listLoans(ctx, t.q, circulation.BuildLoanFilter().ForPatron(patronID).OnlyOpen().Finalize())
}

func (t txStores) ListAllLoans(ctx context.Context) (circulation.Loans, error) {
	return t.store.listLoans(ctx, t.q, circulation.BuildLoanFilter().Finalize())
}

func (t txStores) ListLoansByBook(ctx context.Context, bookID uuid.UUID) (circulation.Loans, error) {
	return t.store.listLoans(ctx, t.q, circulation.BuildLoanFilter().ForBook(bookID).Finalize())
}

/***** Listings outside transactions *****/

// ListLoansByPatron implements circulation.LoanReader.
func (s Store) ListLoansByPatron(ctx context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	return s.ListLoans(ctx, circulation.BuildLoanFilter().ForPatron(patronID).Finalize())
}

// ListActiveLoansByPatron implements circulation.LoanReader.
func (s Store) ListActiveLoansByPatron(ctx context.Context, patronID uuid.UUID) (circulation.Loans, error) {
	return s.ListLoans(ctx, circulation.BuildLoanFilter().ForPatron(patronID).OnlyOpen().Finalize())
}

// ListAllLoans implements circulation.LoanReader.
func (s Store) ListAllLoans(ctx context.Context) (circulation.Loans, error) {
	return s.ListLoans(ctx, circulation.BuildLoanFilter().Finalize())
}

// ListLoansByBook implements circulation.LoanReader.
func (s Store) ListLoansByBook(ctx context.Context, bookID uuid.UUID) (circulation.Loans, error) {
	return s.ListLoans(ctx, circulation.BuildLoanFilter().ForBook(bookID).Finalize())
}

// ListLoans returns the loans matching filter, ordered by borrowed_at and loan_id.
func (s Store) ListLoans(ctx context.Context, filter circulation.LoanFilter) (loans circulation.Loans, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, operationListLoans)

	defer func() {
		s.finishOperation(ctx, span, operationListLoans, time.Since(start), err, logAttrLoanCount, len(loans))
	}()

	return s.listLoans(ctx, s.db, filter)
}

// SaveBook inserts a catalog record, or changes the total of an existing one. Catalog management is
// not part of circulation, this exists for seeding and tests.
//
// For an existing book AvailableCopies is ignored: the available count moves by the change in total
// so copies currently lent stay lent, and never drops below zero.
func (s Store) SaveBook(ctx context.Context, book circulation.Book) error {
	if err := book.Validate(); err != nil {
		return err
	}

	sqlQuery, err := s.buildUpsertBookQuery(book)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, s.db, sqlQuery, logActionSaveBook)

	return err
}

// SavePatron inserts or replaces a patron account. Like SaveBook it exists for seeding and tests.
func (s Store) SavePatron(ctx context.Context, patron circulation.Patron) error {
	sqlQuery, err := s.buildUpsertPatronQuery(patron)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, s.db, sqlQuery, logActionSavePatron)

	return err
}

// DeleteBook removes a catalog record. Loans referencing it are kept.
func (s Store) DeleteBook(ctx context.Context, bookID uuid.UUID) error {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		Delete(s.booksTable).
		Where(goqu.Ex{colBookID: bookID.String()}).
		ToSQL()
	if err != nil {
		return errors.Join(ErrBuildingQueryFailed, err)
	}

	_, err = s.exec(ctx, s.db, sqlQuery, logActionDeleteBook)

	return err
}

// FindBook reads a book outside of a transaction.
func (s Store) FindBook(ctx context.Context, bookID uuid.UUID) (circulation.Book, error) {
	return s.getBook(ctx, s.db, bookID, false)
}

/***** Statements *****/

func (s Store) getBook(ctx context.Context, q adapters.Queryer, bookID uuid.UUID, forUpdate bool) (circulation.Book, error) {
	sqlQuery, err := s.buildSelectBookQuery(bookID, forUpdate)
	if err != nil {
		return circulation.Book{}, err
	}

	rows, err := s.query(ctx, q, sqlQuery, logActionGetBook)
	if err != nil {
		return circulation.Book{}, err
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return circulation.Book{}, s.mapDBError(err)
		}

		return circulation.Book{}, circulation.ErrBookNotFound
	}

	var (
		rawID     string
		total     int
		available int
	)

	if err := rows.Scan(&rawID, &total, &available); err != nil {
		return circulation.Book{}, errors.Join(circulation.ErrPersistence, ErrScanningRowFailed, err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return circulation.Book{}, errors.Join(circulation.ErrPersistence, ErrScanningRowFailed, err)
	}

	return circulation.Book{BookID: id, TotalCopies: total, AvailableCopies: available}, nil
}

func (s Store) setAvailableCopies(ctx context.Context, q adapters.Queryer, bookID uuid.UUID, newCount int) error {
	if newCount < 0 {
		return errors.Join(
			circulation.ErrPersistence,
			circulation.ErrStockOutOfBounds,
			fmt.Errorf("book %s: available %d", bookID, newCount),
		)
	}

	sqlQuery, err := s.buildSetAvailableCopiesQuery(bookID, newCount)
	if err != nil {
		return err
	}

	rowsAffected, err := s.exec(ctx, q, sqlQuery, logActionSetAvailableCopies)
	if err != nil {
		return err
	}

	if rowsAffected > 0 {
		return nil
	}

	// Nothing updated: either the book is gone or newCount exceeds total_copies.
	if _, err := s.getBook(ctx, q, bookID, false); err != nil {
		return err
	}

	return errors.Join(
		circulation.ErrPersistence,
		circulation.ErrStockOutOfBounds,
		fmt.Errorf("book %s: available %d exceeds total copies", bookID, newCount),
	)
}

func (s Store) getPatron(ctx context.Context, q adapters.Queryer, patronID uuid.UUID) (circulation.Patron, error) {
	sqlQuery, err := s.buildSelectPatronQuery(patronID)
	if err != nil {
		return circulation.Patron{}, err
	}

	rows, err := s.query(ctx, q, sqlQuery, logActionGetPatron)
	if err != nil {
		return circulation.Patron{}, err
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return circulation.Patron{}, s.mapDBError(err)
		}

		return circulation.Patron{}, circulation.ErrPatronNotFound
	}

	var (
		rawID     string
		rawStatus string
		maxLoans  int
	)

	if err := rows.Scan(&rawID, &rawStatus, &maxLoans); err != nil {
		return circulation.Patron{}, errors.Join(circulation.ErrPersistence, ErrScanningRowFailed, err)
	}

	id, idErr := uuid.Parse(rawID)
	status, statusErr := circulation.ParseAccountStatus(rawStatus)
	if err := errors.Join(idErr, statusErr); err != nil {
		return circulation.Patron{}, errors.Join(circulation.ErrPersistence, ErrScanningRowFailed, err)
	}

	return circulation.Patron{PatronID: id, AccountStatus: status, MaxConcurrentLoans: maxLoans}, nil
}

func (s Store) findActiveLoan(
	ctx context.Context,
	q adapters.Queryer,
	patronID uuid.UUID,
	bookID uuid.UUID,
) (circulation.Loan, bool, error) {

	sqlQuery, err := s.buildFindActiveLoanQuery(patronID, bookID)
	if err != nil {
		return circulation.Loan{}, false, err
	}

	rows, err := s.query(ctx, q, sqlQuery, logActionFindActiveLoan)
	if err != nil {
		return circulation.Loan{}, false, err
	}
	defer s.closeRows(ctx, rows)

	loans, err := s.scanLoans(rows)
	if err != nil {
		return circulation.Loan{}, false, err
	}

	if len(loans) == 0 {
		return circulation.Loan{}, false, nil
	}

	return loans[0], true, nil
}

func (s Store) insertLoan(ctx context.Context, q adapters.Queryer, loan circulation.Loan) error {
	sqlQuery, err := s.buildInsertLoanQuery(loan)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, q, sqlQuery, logActionInsertLoan)

	return err
}

func (s Store) markReturned(ctx context.Context, q adapters.Queryer, loanID uuid.UUID, returnedAt time.Time) error {
	sqlQuery, err := s.buildMarkReturnedQuery(loanID, returnedAt)
	if err != nil {
		return err
	}

	rowsAffected, err := s.exec(ctx, q, sqlQuery, logActionMarkReturned)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrNoActiveLoan
	}

	return nil
}

func (s Store) listLoans(ctx context.Context, q adapters.Queryer, filter circulation.LoanFilter) (circulation.Loans, error) {
	sqlQuery, err := s.buildListLoansQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, q, sqlQuery, logActionListLoans)
	if err != nil {
		return nil, err
	}
	defer s.closeRows(ctx, rows)

	return s.scanLoans(rows)
}

/***** Execution and scanning *****/

func (s Store) query(ctx context.Context, q adapters.Queryer, sqlQuery string, action string) (adapters.DBRows, error) {
	start := time.Now()
	rows, err := q.Query(ctx, sqlQuery)
	duration := time.Since(start)

	s.logQueryWithDuration(ctx, sqlQuery, action, duration)
	s.recordStatementMetrics(ctx, action, duration, err)

	if err != nil {
		s.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		return nil, s.mapDBError(err)
	}

	return rows, nil
}

func (s Store) execStatement(ctx context.Context, q adapters.Queryer, sqlQuery string, action string) (adapters.DBResult, error) {
	start := time.Now()
	result, err := q.Exec(ctx, sqlQuery)
	duration := time.Since(start)

	s.logQueryWithDuration(ctx, sqlQuery, action, duration)
	s.recordStatementMetrics(ctx, action, duration, err)

	if err != nil {
		s.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, sqlQuery)
		return nil, s.mapDBError(err)
	}

	return result, nil
}

func (s Store) exec(ctx context.Context, q adapters.Queryer, sqlQuery string, action string) (int64, error) {
	result, err := s.execStatement(ctx, q, sqlQuery, action)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Join(circulation.ErrPersistence, err)
	}

	return rowsAffected, nil
}

func (s Store) closeRows(ctx context.Context, rows adapters.DBRows) {
	if err := rows.Close(); err != nil {
		s.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, err.Error())
	}
}

// loanRow holds the raw column values of one loans row.
type loanRow struct {
	loanID     string
	patronID   string
	bookID     string
	borrowedAt time.Time
	dueAt      time.Time
	returnedAt sql.NullTime
	status     string
}

func (r loanRow) toLoan() (circulation.Loan, error) {
	loanID, loanIDErr := uuid.Parse(r.loanID)
	patronID, patronIDErr := uuid.Parse(r.patronID)
	bookID, bookIDErr := uuid.Parse(r.bookID)
	status, statusErr := circulation.ParseLoanStatus(r.status)

	if err := errors.Join(loanIDErr, patronIDErr, bookIDErr, statusErr); err != nil {
		return circulation.Loan{}, err
	}

	loan := circulation.Loan{
		LoanID:     loanID,
		PatronID:   patronID,
		BookID:     bookID,
		BorrowedAt: circulation.ToTimestamp(r.borrowedAt),
		DueAt:      circulation.ToTimestamp(r.dueAt),
		Status:     status,
	}

	if r.returnedAt.Valid {
		returnedAt := circulation.ToTimestamp(r.returnedAt.Time)
		loan.ReturnedAt = &returnedAt
	}

	return loan, nil
}

func (s Store) scanLoans(rows adapters.DBRows) (circulation.Loans, error) {
	loans := make(circulation.Loans, 0)

	for rows.Next() {
		var r loanRow

		if err := rows.Scan(&r.loanID, &r.patronID, &r.bookID, &r.borrowedAt, &r.dueAt, &r.returnedAt, &r.status); err != nil {
			return nil, errors.Join(circulation.ErrPersistence, ErrScanningRowFailed, err)
		}

		loan, err := r.toLoan()
		if err != nil {
			return nil, errors.Join(circulation.ErrPersistence, ErrScanningRowFailed, err)
		}

		loans = append(loans, loan)
	}

	if err := rows.Err(); err != nil {
		return nil, s.mapDBError(err)
	}

	return loans, nil
}

/***** Query building *****/

func (s Store) loanColumns() []any {
	return []any{
		goqu.L(castIDAsText, goqu.I(colLoanID)).As(colLoanID),
		goqu.L(castIDAsText, goqu.I(colPatronID)).As(colPatronID),
		goqu.L(castIDAsText, goqu.I(colBookID)).As(colBookID),
		colBorrowedAt,
		colDueAt,
		colReturnedAt,
		colStatus,
	}
}

func (s Store) buildSelectBookQuery(bookID uuid.UUID, forUpdate bool) (string, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.booksTable).
		Select(goqu.L(castIDAsText, goqu.I(colBookID)).As(colBookID), colTotalCopies, colAvailableCopies).
		Where(goqu.Ex{colBookID: bookID.String()})

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	return toSQL(selectStmt)
}

func (s Store) buildSetAvailableCopiesQuery(bookID uuid.UUID, newCount int) (string, error) {
	updateStmt := goqu.Dialect(dialectPostgres).
		Update(s.booksTable).
		Set(goqu.Record{colAvailableCopies: newCount}).
		Where(
			goqu.C(colBookID).Eq(bookID.String()),
			goqu.C(colTotalCopies).Gte(newCount),
		)

	return toSQL(updateStmt)
}

func (s Store) buildSelectPatronQuery(patronID uuid.UUID) (string, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.patronsTable).
		Select(goqu.L(castIDAsText, goqu.I(colPatronID)).As(colPatronID), colAccountStatus, colMaxConcurrentLoans).
		Where(goqu.Ex{colPatronID: patronID.String()})

	return toSQL(selectStmt)
}

func (s Store) buildFindActiveLoanQuery(patronID uuid.UUID, bookID uuid.UUID) (string, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.loansTable).
		Select(s.loanColumns()...).
		Where(goqu.Ex{
			colPatronID:   patronID.String(),
			colBookID:     bookID.String(),
			colReturnedAt: nil,
		}).
		ForUpdate(exp.Wait)

	return toSQL(selectStmt)
}

func (s Store) buildInsertLoanQuery(loan circulation.Loan) (string, error) {
	record := goqu.Record{
		colLoanID:     loan.LoanID.String(),
		colPatronID:   loan.PatronID.String(),
		colBookID:     loan.BookID.String(),
		colBorrowedAt: circulation.ToTimestamp(loan.BorrowedAt),
		colDueAt:      circulation.ToTimestamp(loan.DueAt),
		colReturnedAt: nil,
		colStatus:     loan.Status.String(),
	}

	if loan.ReturnedAt != nil {
		record[colReturnedAt] = circulation.ToTimestamp(*loan.ReturnedAt)
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(s.loansTable).
		Rows(record)

	return toSQL(insertStmt)
}

func (s Store) buildMarkReturnedQuery(loanID uuid.UUID, returnedAt time.Time) (string, error) {
	updateStmt := goqu.Dialect(dialectPostgres).
		Update(s.loansTable).
		Set(goqu.Record{
			colReturnedAt: circulation.ToTimestamp(returnedAt),
			colStatus:     circulation.LoanStatusReturned.String(),
		}).
		Where(goqu.Ex{
			colLoanID:     loanID.String(),
			colReturnedAt: nil,
		})

	return toSQL(updateStmt)
}

func (s Store) buildListLoansQuery(filter circulation.LoanFilter) (string, error) {
	conditions := make([]exp.Expression, 0)

	if filter.PatronID() != uuid.Nil {
		conditions = append(conditions, goqu.C(colPatronID).Eq(filter.PatronID().String()))
	}

	if filter.BookID() != uuid.Nil {
		conditions = append(conditions, goqu.C(colBookID).Eq(filter.BookID().String()))
	}

	if filter.OnlyOpen() {
		conditions = append(conditions, goqu.C(colReturnedAt).IsNull())
	}

	if !filter.BorrowedFrom().IsZero() {
		conditions = append(conditions, goqu.C(colBorrowedAt).Gte(filter.BorrowedFrom()))
	}

	if !filter.BorrowedUntil().IsZero() {
		conditions = append(conditions, goqu.C(colBorrowedAt).Lte(filter.BorrowedUntil()))
	}

	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.loansTable).
		Select(s.loanColumns()...).
		Order(goqu.I(colBorrowedAt).Asc(), goqu.I(colLoanID).Asc())

	if len(conditions) > 0 {
		selectStmt = selectStmt.Where(conditions...)
	}

	return toSQL(selectStmt)
}

func (s Store) buildUpsertBookQuery(book circulation.Book) (string, error) {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(s.booksTable).
		Rows(goqu.Record{
			colBookID:          book.BookID.String(),
			colTotalCopies:     book.TotalCopies,
			colAvailableCopies: book.AvailableCopies,
		}).
		OnConflict(goqu.DoUpdate(colBookID, goqu.Record{
			colTotalCopies: goqu.I("excluded." + colTotalCopies),
			colAvailableCopies: goqu.L(
				"GREATEST(0, ? + ? - ?)",
				goqu.I(s.booksTable+"."+colAvailableCopies),
				goqu.I("excluded."+colTotalCopies),
				goqu.I(s.booksTable+"."+colTotalCopies),
			),
		}))

	return toSQL(insertStmt)
}

func (s Store) buildUpsertPatronQuery(patron circulation.Patron) (string, error) {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(s.patronsTable).
		Rows(goqu.Record{
			colPatronID:           patron.PatronID.String(),
			colAccountStatus:      string(patron.AccountStatus),
			colMaxConcurrentLoans: patron.MaxConcurrentLoans,
		}).
		OnConflict(goqu.DoUpdate(colPatronID, goqu.Record{
			colAccountStatus:      goqu.I("excluded." + colAccountStatus),
			colMaxConcurrentLoans: goqu.I("excluded." + colMaxConcurrentLoans),
		}))

	return toSQL(insertStmt)
}

func (s Store) mapDBError(err error) error {
	return mapDBError(err, s.openLoanIndexName())
}

type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func toSQL(stmt sqlBuilder) (string, error) {
	sqlQuery, _, err := stmt.ToSQL()
	if err != nil {
		return "", errors.Join(ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}
