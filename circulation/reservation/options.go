package reservation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// ErrNilClock is returned when WithClock is given a nil function.
var ErrNilClock = errors.New("clock must not be nil")

// ErrNilLoanIDGenerator is returned when WithLoanIDGenerator is given a nil function.
var ErrNilLoanIDGenerator = errors.New("loan id generator must not be nil")

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithClock replaces time.Now as the source of BorrowedAt, DueAt, ReturnedAt and the Overdue derivation.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) error {
		if clock == nil {
			return ErrNilClock
		}

		e.clock = clock

		return nil
	}
}

// WithLoanIDGenerator replaces uuid.New as the source of new loan ids.
func WithLoanIDGenerator(generate func() uuid.UUID) Option {
	return func(e *Engine) error {
		if generate == nil {
			return ErrNilLoanIDGenerator
		}

		e.newLoanID = generate

		return nil
	}
}

// WithPatronLimits makes Borrow check the patron account: the patron must exist, be active, and hold
// fewer than MaxConcurrentLoans open loans. Without this option patrons are not looked up at all.
func WithPatronLimits() Option {
	return func(e *Engine) error {
		e.patronLimits = true
		return nil
	}
}

// WithLogger sets the logger for the Engine.
//
// Info level: completed operations and rejections
// Warn level: returns of books that no longer exist in the catalog
// Error level: persistence and consistency failures.
func WithLogger(logger circulation.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. It takes precedence over WithLogger.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine.
func WithTracing(collector circulation.TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}
