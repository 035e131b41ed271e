package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	adapterPGX  = "pgx"
	adapterSQL  = "sql"
	adapterSQLX = "sqlx"

	defaultLoanDays = 14
	defaultRetries  = 3
)

var (
	errUnknownAdapter  = errors.New("unknown adapter, use pgx, sql or sqlx")
	errUnknownLogLevel = errors.New("unknown log level, use debug, info, warn or error")
	errMissingCommand  = errors.New("missing command")
)

// Config is the parsed command line.
type Config struct {
	Adapter              string
	Days                 int
	Retries              int
	ObservabilityEnabled bool
	LogLevel             slog.Level
	PatronLimits         bool
	Eventual             bool
	Command              string
	Args                 []string
}

func parseFlags(args []string, output io.Writer) (Config, error) {
	cfg := Config{}
	fs := flag.NewFlagSet("circulation", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() { usage(fs) }

	var logLevel string

	fs.StringVar(&cfg.Adapter, "adapter", adapterPGX, "database adapter: pgx, sql or sqlx")
	fs.IntVar(&cfg.Days, "days", defaultLoanDays, "loan duration in days for borrow")
	fs.IntVar(&cfg.Retries, "retries", defaultRetries, "attempts for borrow and return on transient failures")
	fs.BoolVar(&cfg.ObservabilityEnabled, "observability-enabled", false, "export traces and metrics via OTLP")
	fs.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	fs.BoolVar(&cfg.PatronLimits, "patron-limits", false, "enforce patron account status and loan limits")
	fs.BoolVar(&cfg.Eventual, "eventual", false, "serve listings from the read replica if one is configured")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	switch cfg.Adapter {
	case adapterPGX, adapterSQL, adapterSQLX:
	default:
		return Config{}, fmt.Errorf("%w: %q", errUnknownAdapter, cfg.Adapter)
	}

	level, err := parseLogLevel(logLevel)
	if err != nil {
		return Config{}, err
	}

	cfg.LogLevel = level

	if err := circulation.ValidateLoanDuration(cfg.Days); err != nil {
		return Config{}, err
	}

	if fs.NArg() == 0 {
		return Config{}, errMissingCommand
	}

	cfg.Command = fs.Arg(0)
	cfg.Args = fs.Args()[1:]

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownLogLevel, s)
	}
}

func usage(fs *flag.FlagSet) {
	_, _ = fmt.Fprintln(fs.Output(), `usage: circulation [flags] <command> [arguments]

commands:
  borrow <patron-id> <book-id>     lend one copy of a book
  return <patron-id> <book-id>     bring back a borrowed copy
  loans <patron-id>                all loans of a patron
  active <patron-id>               open loans of a patron
  all                              every loan
  book-loans <book-id>             all loans of a book
  add-book <book-id> <copies>      add or replace a catalog record
  add-patron <patron-id> <limit>   add or replace a patron account
  init-schema                      create tables and indexes
  demo                             run the circulation scenarios against an in-memory store

flags:`)
	fs.PrintDefaults()
}
