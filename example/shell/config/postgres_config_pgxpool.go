package config

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPGXPoolConfig creates a pgxpool.Config for the given DSN.
func PostgresPGXPoolConfig(dsn string) (*pgxpool.Config, error) {
	const defaultMaxConnections = int32(20)
	const defaultMinConnections = int32(2)
	const defaultMaxConnLifetime = time.Hour
	const defaultMaxConnIdleTime = time.Minute * 5
	const defaultHealthCheckPeriod = time.Minute
	const defaultConnectTimeout = time.Second * 5

	dbConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	dbConfig.MaxConns = defaultMaxConnections
	dbConfig.MinConns = defaultMinConnections
	dbConfig.MaxConnLifetime = defaultMaxConnLifetime
	dbConfig.MaxConnIdleTime = defaultMaxConnIdleTime
	dbConfig.HealthCheckPeriod = defaultHealthCheckPeriod
	dbConfig.ConnConfig.ConnectTimeout = defaultConnectTimeout

	return dbConfig, nil
}

// NewPGXPools connects the primary pool and, when a replica DSN is configured, the replica pool.
// The replica pool is nil otherwise.
func NewPGXPools(ctx context.Context) (primary *pgxpool.Pool, replica *pgxpool.Pool, err error) {
	primaryConfig, err := PostgresPGXPoolConfig(PostgresDSN())
	if err != nil {
		return nil, nil, err
	}

	primary, err = pgxpool.NewWithConfig(ctx, primaryConfig)
	if err != nil {
		return nil, nil, err
	}

	if PostgresReplicaDSN() == "" {
		return primary, nil, nil
	}

	replicaConfig, err := PostgresPGXPoolConfig(PostgresReplicaDSN())
	if err != nil {
		primary.Close()
		return nil, nil, err
	}

	replica, err = pgxpool.NewWithConfig(ctx, replicaConfig)
	if err != nil {
		primary.Close()
		return nil, nil, errors.Join(errors.New("connecting to the replica failed"), err)
	}

	return primary, replica, nil
}
