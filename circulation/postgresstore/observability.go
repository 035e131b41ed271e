package postgresstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	// StatementDurationMetric tracks the duration of single SQL statements by action.
	StatementDurationMetric = "circulation_store_statement_duration_seconds"
	// OperationDurationMetric tracks the duration of transactions and loan listings.
	OperationDurationMetric = "circulation_store_operation_duration_seconds"
	// DatabaseErrorsMetric counts failed statements and transactions.
	DatabaseErrorsMetric = "circulation_store_database_errors_total"

	statusSuccess = "success"
	statusError   = "error"

	operationTransaction = "transaction"
	operationListLoans   = "list_loans"

	spanNamePrefix = "circulation.postgres."

	logActionGetBook            = "get_book"
	logActionSetAvailableCopies = "set_available_copies"
	logActionGetPatron          = "get_patron"
	logActionFindActiveLoan     = "find_active_loan"
	logActionInsertLoan         = "insert_loan"
	logActionMarkReturned       = "mark_returned"
	logActionListLoans          = "list_loans"
	logActionSaveBook           = "save_book"
	logActionSavePatron         = "save_patron"
	logActionDeleteBook         = "delete_book"
	logActionEnsureSchema       = "ensure_schema"

	logMsgSQLExecuted     = "circulation.postgres: executed sql for: "
	logMsgOperation       = "circulation.postgres: operation completed: "
	logMsgDBQueryFailed   = "database query execution failed"
	logMsgDBExecFailed    = "database statement execution failed"
	logMsgRollbackFailed  = "failed to rollback transaction"
	logMsgRollbackSkipped = "transaction already ended before rollback"
	logMsgCloseRowsFailed = "failed to close database rows"
	logMsgOperationFailed = "circulation.postgres: operation failed: "
	logMsgSchemaEnsured   = "circulation.postgres: schema ensured"

	logAttrAction     = "action"
	logAttrOperation  = "operation"
	logAttrStatus     = "status"
	logAttrQuery      = "query"
	logAttrError      = "error"
	logAttrErrorType  = "error_type"
	logAttrDurationMS = "duration_ms"
	logAttrLoanCount  = "loan_count"
)

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func statusOf(err error) string {
	if err != nil {
		return statusError
	}

	return statusSuccess
}

/***** Logging *****/

func (s Store) logDebug(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s Store) logInfo(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s Store) logWarn(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
	} else if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

// logError logs err at error level, followed by args.
func (s Store) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	} else if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}
}

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (s Store) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	s.logDebug(ctx, logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
}

/***** Metrics *****/

func (s Store) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metric, duration, labels)
}

func (s Store) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metric, labels)
}

func (s Store) recordStatementMetrics(ctx context.Context, action string, duration time.Duration, err error) {
	status := statusOf(err)

	s.recordDuration(ctx, StatementDurationMetric, duration, map[string]string{
		logAttrAction: action,
		logAttrStatus: status,
	})

	if err != nil {
		s.incrementCounter(ctx, DatabaseErrorsMetric, map[string]string{
			logAttrAction:    action,
			logAttrErrorType: circulation.ErrorType(s.mapDBError(err)),
		})
	}
}

/***** Tracing *****/

func (s Store) startSpan(ctx context.Context, operation string) (context.Context, circulation.SpanContext) {
	if s.tracingCollector == nil {
		return ctx, nil
	}

	return s.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{
		logAttrOperation: operation,
	})
}

func (s Store) finishSpan(span circulation.SpanContext, status string, attrs map[string]string) {
	if s.tracingCollector == nil || span == nil {
		return
	}

	s.tracingCollector.FinishSpan(span, status, attrs)
}

// finishOperation records metrics, log and span of a finished transaction or listing.
// args are key value pairs added to the log record.
func (s Store) finishOperation(
	ctx context.Context,
	span circulation.SpanContext,
	operation string,
	duration time.Duration,
	err error,
	args ...any,
) {
	status := statusOf(err)
	labels := map[string]string{logAttrOperation: operation, logAttrStatus: status}
	spanAttrs := map[string]string{logAttrDurationMS: fmt.Sprintf("%.2f", toMilliseconds(duration))}

	s.recordDuration(ctx, OperationDurationMetric, duration, labels)

	if err != nil {
		spanAttrs[logAttrErrorType] = circulation.ErrorType(err)

		// Rejections raised inside a transaction are not database failures.
		if !circulation.IsRejection(err) {
			s.incrementCounter(ctx, DatabaseErrorsMetric, map[string]string{
				logAttrOperation: operation,
				logAttrErrorType: circulation.ErrorType(err),
			})
			s.logError(ctx, logMsgOperationFailed+operation, err, args...)
		}

		s.finishSpan(span, status, spanAttrs)

		return
	}

	allArgs := []any{logAttrDurationMS, toMilliseconds(duration)}
	allArgs = append(allArgs, args...)
	s.logInfo(ctx, logMsgOperation+operation, allArgs...)
	s.finishSpan(span, status, spanAttrs)
}
