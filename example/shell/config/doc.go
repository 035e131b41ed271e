// Package config provides database and observability configuration for the circulation example CLI.
//
// Connection settings come from the environment:
//
//	CIRCULATION_POSTGRES_DSN          primary database (default: local development database)
//	CIRCULATION_POSTGRES_REPLICA_DSN  optional read replica used for eventual-consistency listings
//	CIRCULATION_OTLP_ENDPOINT         OTLP gRPC endpoint for traces and metrics (default: localhost:4317)
package config
