package pgtesthelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresstore"
	"github.com/AntonStoeckl/library-circulation-go/testutil/postgresstore/config"
)

// Adapter type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

// Wrapper abstracts over the different database handles a Store can be built from.
type Wrapper interface {
	GetStore() postgresstore.Store
	Exec(t testing.TB, statement string)
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	pool  *pgxpool.Pool
	store postgresstore.Store
}

func (w *PGXPoolWrapper) GetStore() postgresstore.Store {
	return w.store
}

func (w *PGXPoolWrapper) Exec(t testing.TB, statement string) {
	_, err := w.pool.Exec(context.Background(), statement)
	require.NoError(t, err, "error executing statement in test setup")
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	db    *sql.DB
	store postgresstore.Store
}

func (w *SQLDBWrapper) GetStore() postgresstore.Store {
	return w.store
}

func (w *SQLDBWrapper) Exec(t testing.TB, statement string) {
	_, err := w.db.ExecContext(context.Background(), statement)
	require.NoError(t, err, "error executing statement in test setup")
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	db    *sqlx.DB
	store postgresstore.Store
}

func (w *SQLXWrapper) GetStore() postgresstore.Store {
	return w.store
}

func (w *SQLXWrapper) Exec(t testing.TB, statement string) {
	_, err := w.db.ExecContext(context.Background(), statement)
	require.NoError(t, err, "error executing statement in test setup")
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the wrapper selected by ADAPTER_TYPE, ensures the schema and
// registers Close as test cleanup. It skips the test when no test database is configured.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresstore.Option) Wrapper {
	t.Helper()

	if config.PostgresTestDSN() == "" {
		t.Skipf("%s is not set, skipping PostgreSQL integration test", config.TestDSNEnv)
	}

	wrapper := createWrapper(t, options)
	t.Cleanup(wrapper.Close)

	err := wrapper.GetStore().EnsureSchema(context.Background())
	require.NoError(t, err, "error ensuring the schema in test setup")

	return wrapper
}

func createWrapper(t testing.TB, options []postgresstore.Option) Wrapper {
	adapterTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch adapterTypeFromEnv {
	case typePGXPool, "":
		connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolTestConfig())
		require.NoError(t, err, "error connecting to DB pool in test setup")

		store, err := postgresstore.NewStoreFromPGXPool(connPool, options...)
		require.NoError(t, err, "error creating the store in test setup")

		return &PGXPoolWrapper{pool: connPool, store: store}

	case typeSQLDB:
		db := config.PostgresSQLDBTestConfig()

		store, err := postgresstore.NewStoreFromSQLDB(db, options...)
		require.NoError(t, err, "error creating the store in test setup")

		return &SQLDBWrapper{db: db, store: store}

	case typeSQLXDB:
		db := config.PostgresSQLXTestConfig()

		store, err := postgresstore.NewStoreFromSQLX(db, options...)
		require.NoError(t, err, "error creating the store in test setup")

		return &SQLXWrapper{db: db, store: store}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterTypeFromEnv))
	}
}

// CleanUp removes all books, loans and patrons from the tables the wrapped store uses.
func CleanUp(t testing.TB, wrapper Wrapper) {
	t.Helper()
	wrapper.Exec(t, TruncateStatement(wrapper.GetStore()))
}

// TruncateStatement empties the tables of store.
func TruncateStatement(store postgresstore.Store) string {
	tables := make([]string, 0, 3)
	for _, table := range store.TableNames() {
		tables = append(tables, pgx.Identifier{table}.Sanitize())
	}

	return "TRUNCATE TABLE " + strings.Join(tables, ", ")
}
