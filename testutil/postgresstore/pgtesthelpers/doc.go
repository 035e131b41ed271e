// Package pgtesthelpers provides test utilities for the PostgreSQL circulation store with multi-adapter support.
//
// Test adapter selection is controlled via the ADAPTER_TYPE environment variable:
//
//	pgx.pool (default): wraps pgx.Pool
//	sql.db: wraps database/sql with lib/pq
//	sqlx.db: wraps sqlx.DB with lib/pq
//
// Tests using CreateWrapperWithTestConfig are skipped when CIRCULATION_TEST_POSTGRES_DSN is not set.
package pgtesthelpers
