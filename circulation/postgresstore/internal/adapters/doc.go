// Package adapters lets the Postgres store run on pgxpool.Pool, sql.DB or sqlx.DB.
//
// Every adapter offers plain queries, executions and transactions through the same small
// interfaces. The pgx adapter can additionally route reads to a replica pool when the
// context requests eventual consistency.
package adapters
