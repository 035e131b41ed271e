// Package config provides PostgreSQL database configuration for circulation store testing.
//
// This package contains factory functions for creating database connections
// using the supported PostgreSQL adapters (pgx.Pool, sql.DB, sqlx.DB).
// The test database is taken from the CIRCULATION_TEST_POSTGRES_DSN environment variable,
// integration tests are skipped when it is not set.
package config
