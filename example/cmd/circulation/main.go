// Command circulation borrows and returns books against a PostgreSQL backed circulation store.
//
// Results are printed as JSON on stdout, logs go to stderr.
//
// Exit codes: 0 success, 1 infrastructure failure, 2 rejected by a business rule,
// 3 loan and stock may have diverged, 64 usage error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresstore"
	"github.com/AntonStoeckl/library-circulation-go/circulation/reservation"
	"github.com/AntonStoeckl/library-circulation-go/example/shell/config"
)

const (
	serviceVersion     = "1.0.0"
	instrumentationLib = "github.com/AntonStoeckl/library-circulation-go"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	cfg, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}

	if err != nil {
		_, _ = fmt.Fprintf(stderr, "circulation: %v\n", err)
		return exitUsage
	}

	cmd, err := parseCommand(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "circulation: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app{cfg: cfg, out: stdout}
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(
		slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}),
	)

	if cmd.needsStore {
		closeAll, err := a.open(ctx, logger)
		if err != nil {
			logger.ErrorContext(ctx, "circulation: setup failed", "error", err.Error())
			_ = closeAll()

			return renderError(stdout, err)
		}

		defer func() {
			if err := closeAll(); err != nil {
				logger.WarnContext(ctx, "circulation: shutdown failed", "error", err.Error())
			}
		}()
	}

	if err := cmd.run(ctx, a); err != nil {
		return renderError(stdout, err)
	}

	return exitOK
}

// open connects the store and builds the engine. The returned function releases everything opened.
func (a *app) open(ctx context.Context, logger *oteladapters.SlogBridgeLogger) (func() error, error) {
	var closers []func() error

	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}

		return errors.Join(errs...)
	}

	storeOptions := []postgresstore.Option{postgresstore.WithContextualLogger(logger)}
	engineOptions := []reservation.Option{reservation.WithContextualLogger(logger)}

	if a.cfg.PatronLimits {
		engineOptions = append(engineOptions, reservation.WithPatronLimits())
	}

	if a.cfg.ObservabilityEnabled {
		providers, err := config.NewObservabilityProviders(ctx, serviceVersion)
		if err != nil {
			return closeAll, err
		}

		closers = append(closers, providers.Shutdown)

		metrics := oteladapters.NewMetricsCollector(otel.Meter(instrumentationLib))
		tracing := oteladapters.NewTracingCollector(otel.Tracer(instrumentationLib))
		a.metrics = metrics

		storeOptions = append(storeOptions, postgresstore.WithMetrics(metrics), postgresstore.WithTracing(tracing))
		engineOptions = append(engineOptions, reservation.WithMetrics(metrics), reservation.WithTracing(tracing))
	}

	store, closeStore, err := openStore(ctx, a.cfg.Adapter, storeOptions)
	if err != nil {
		return closeAll, err
	}

	closers = append(closers, closeStore)

	engine, err := reservation.NewEngine(store, engineOptions...)
	if err != nil {
		return closeAll, err
	}

	a.engine = engine
	a.admin = store

	return closeAll, nil
}

func openStore(ctx context.Context, adapter string, options []postgresstore.Option) (postgresstore.Store, func() error, error) {
	switch adapter {
	case adapterSQL:
		db, err := config.NewSQLDB(ctx)
		if err != nil {
			return postgresstore.Store{}, nil, errors.Join(circulation.ErrPersistence, err)
		}

		store, err := postgresstore.NewStoreFromSQLDB(db, options...)

		return store, db.Close, err

	case adapterSQLX:
		db, err := config.NewSQLX(ctx)
		if err != nil {
			return postgresstore.Store{}, nil, errors.Join(circulation.ErrPersistence, err)
		}

		store, err := postgresstore.NewStoreFromSQLX(db, options...)

		return store, db.Close, err

	default:
		primary, replica, err := config.NewPGXPools(ctx)
		if err != nil {
			return postgresstore.Store{}, nil, errors.Join(circulation.ErrPersistence, err)
		}

		closePools := func() error {
			primary.Close()
			if replica != nil {
				replica.Close()
			}

			return nil
		}

		if replica != nil {
			store, err := postgresstore.NewStoreFromPGXPoolWithReplica(primary, replica, options...)
			return store, closePools, err
		}

		store, err := postgresstore.NewStoreFromPGXPool(primary, options...)

		return store, closePools, err
	}
}
