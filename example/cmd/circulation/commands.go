package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/reservation"
	"github.com/AntonStoeckl/library-circulation-go/example/shell"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errWrongArgCount  = errors.New("wrong number of arguments")
	errInvalidID      = errors.New("invalid id")
	errInvalidNumber  = errors.New("invalid number")
)

// adminStore covers the catalog and schema operations the CLI needs besides the engine.
type adminStore interface {
	SaveBook(ctx context.Context, book circulation.Book) error
	SavePatron(ctx context.Context, patron circulation.Patron) error
	EnsureSchema(ctx context.Context) error
}

type app struct {
	cfg     Config
	engine  reservation.Engine
	admin   adminStore
	metrics circulation.MetricsCollector
	out     io.Writer
}

type command struct {
	name       string
	needsStore bool
	run        func(ctx context.Context, a app) error
}

// parseCommand validates the command and its arguments before anything is opened.
func parseCommand(cfg Config) (command, error) {
	switch cfg.Command {
	case "borrow":
		patronID, bookID, err := patronAndBook(cfg.Args)
		if err != nil {
			return command{}, err
		}

		return storeCommand(cfg.Command, func(ctx context.Context, a app) error {
			return a.borrow(ctx, reservation.BuildBorrowCommand(patronID, bookID, a.cfg.Days))
		}), nil

	case "return":
		patronID, bookID, err := patronAndBook(cfg.Args)
		if err != nil {
			return command{}, err
		}

		return storeCommand(cfg.Command, func(ctx context.Context, a app) error {
			return a.returnBook(ctx, reservation.BuildReturnCommand(patronID, bookID))
		}), nil

	case "loans", "active", "book-loans":
		id, err := singleID(cfg.Args)
		if err != nil {
			return command{}, err
		}

		name := cfg.Command

		return storeCommand(name, func(ctx context.Context, a app) error {
			return a.list(ctx, name, id)
		}), nil

	case "all":
		if len(cfg.Args) != 0 {
			return command{}, fmt.Errorf("%w: all takes none", errWrongArgCount)
		}

		return storeCommand(cfg.Command, func(ctx context.Context, a app) error {
			return a.list(ctx, "all", uuid.Nil)
		}), nil

	case "add-book":
		id, copies, err := idAndCount(cfg.Args)
		if err != nil {
			return command{}, err
		}

		return storeCommand(cfg.Command, func(ctx context.Context, a app) error {
			return a.addBook(ctx, id, copies)
		}), nil

	case "add-patron":
		id, limit, err := idAndCount(cfg.Args)
		if err != nil {
			return command{}, err
		}

		return storeCommand(cfg.Command, func(ctx context.Context, a app) error {
			return a.addPatron(ctx, id, limit)
		}), nil

	case "init-schema":
		return storeCommand(cfg.Command, func(ctx context.Context, a app) error {
			if err := a.admin.EnsureSchema(ctx); err != nil {
				return err
			}

			return writeJSON(a.out, map[string]string{"schema": "ready"})
		}), nil

	case "demo":
		return command{name: cfg.Command, run: func(ctx context.Context, a app) error {
			return runDemo(ctx, a.out)
		}}, nil

	default:
		return command{}, fmt.Errorf("%w: %q", errUnknownCommand, cfg.Command)
	}
}

func storeCommand(name string, run func(ctx context.Context, a app) error) command {
	return command{name: name, needsStore: true, run: run}
}

func (a app) borrow(ctx context.Context, cmd reservation.BorrowCommand) error {
	var result reservation.BorrowResult

	meta, err := shell.RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		var borrowErr error
		result, borrowErr = a.engine.Borrow(ctx, cmd)

		return borrowErr
	}, a.retryOptions(cmd.CommandType())...)
	if err != nil {
		return err
	}

	return writeJSON(a.out, toBorrowView(result, meta.Attempts))
}

func (a app) returnBook(ctx context.Context, cmd reservation.ReturnCommand) error {
	var result reservation.ReturnResult

	meta, err := shell.RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		var returnErr error
		result, returnErr = a.engine.Return(ctx, cmd)

		return returnErr
	}, a.retryOptions(cmd.CommandType())...)
	if err != nil {
		return err
	}

	return writeJSON(a.out, toReturnView(result, meta.Attempts))
}

func (a app) retryOptions(commandType string) []shell.RetryOption {
	options := []shell.RetryOption{shell.WithMaxAttempts(a.cfg.Retries)}

	if a.metrics != nil {
		options = append(options, shell.WithMetrics(a.metrics, commandType))
	}

	return options
}

func (a app) list(ctx context.Context, name string, id uuid.UUID) error {
	if a.cfg.Eventual {
		ctx = circulation.WithEventualConsistency(ctx)
	}

	var (
		loans circulation.Loans
		err   error
	)

	switch name {
	case "loans":
		loans, err = a.engine.LoansByPatron(ctx, id)
	case "active":
		loans, err = a.engine.ActiveLoansByPatron(ctx, id)
	case "book-loans":
		loans, err = a.engine.LoansByBook(ctx, id)
	default:
		loans, err = a.engine.AllLoans(ctx)
	}

	if err != nil {
		return err
	}

	return writeJSON(a.out, toLoanViews(loans))
}

func (a app) addBook(ctx context.Context, bookID uuid.UUID, copies int) error {
	book, err := circulation.BuildBook(bookID, copies, copies)
	if err != nil {
		return err
	}

	if err := a.admin.SaveBook(ctx, book); err != nil {
		return err
	}

	return writeJSON(a.out, map[string]any{"book_id": bookID.String(), "total_copies": copies})
}

func (a app) addPatron(ctx context.Context, patronID uuid.UUID, limit int) error {
	patron := circulation.BuildPatron(patronID)
	patron.MaxConcurrentLoans = limit

	if err := a.admin.SavePatron(ctx, patron); err != nil {
		return err
	}

	return writeJSON(a.out, map[string]any{"patron_id": patronID.String(), "max_concurrent_loans": limit})
}

func patronAndBook(args []string) (uuid.UUID, uuid.UUID, error) {
	if len(args) != 2 {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: want <patron-id> <book-id>", errWrongArgCount)
	}

	patronID, err := parseID(args[0])
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	bookID, err := parseID(args[1])
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	return patronID, bookID, nil
}

func singleID(args []string) (uuid.UUID, error) {
	if len(args) != 1 {
		return uuid.Nil, fmt.Errorf("%w: want one id", errWrongArgCount)
	}

	return parseID(args[0])
}

func idAndCount(args []string) (uuid.UUID, int, error) {
	if len(args) != 2 {
		return uuid.Nil, 0, fmt.Errorf("%w: want <id> <count>", errWrongArgCount)
	}

	id, err := parseID(args[0])
	if err != nil {
		return uuid.Nil, 0, err
	}

	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return uuid.Nil, 0, fmt.Errorf("%w: %q", errInvalidNumber, args[1])
	}

	return id, n, nil
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.Join(fmt.Errorf("%w: %q", errInvalidID, s), err)
	}

	return id, nil
}
