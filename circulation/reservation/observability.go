package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	// OperationDurationMetric tracks engine operation duration.
	OperationDurationMetric = "circulation_operation_duration_seconds"
	// OperationCallsMetric counts engine operations by status.
	OperationCallsMetric = "circulation_operation_calls_total"
	// RejectionsMetric counts business rule rejections by error type.
	RejectionsMetric = "circulation_rejections_total"
	// ConsistencyFailuresMetric counts diverged loan and stock state.
	ConsistencyFailuresMetric = "circulation_consistency_failures_total"
	// AvailableCopiesMetric records the available copies of a book after Borrow or Return.
	AvailableCopiesMetric = "circulation_available_copies"

	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"

	operationBorrow              = "borrow"
	operationReturn              = "return"
	operationLoansByPatron       = "loans_by_patron"
	operationActiveLoansByPatron = "active_loans_by_patron"
	operationAllLoans            = "all_loans"
	operationLoansByBook         = "loans_by_book"

	spanNamePrefix = "circulation."

	logMsgOperationCompleted = "circulation operation completed"
	logMsgOperationRejected  = "circulation operation rejected"
	logMsgOperationFailed    = "circulation operation failed"
	logMsgConsistencyFailure = "loan and stock state diverged, manual repair may be needed"
	logMsgBookGoneOnReturn   = "returned book no longer exists, stock adjustment skipped"

	logAttrOperation  = "operation"
	logAttrPatronID   = "patron_id"
	logAttrBookID     = "book_id"
	logAttrLoanID     = "loan_id"
	logAttrStatus     = "status"
	logAttrErrorType  = "error_type"
	logAttrError      = "error"
	logAttrDurationMS = "duration_ms"
	logAttrRolledBack = "rolled_back"
	logAttrLoanCount  = "loan_count"
)

// outcome classifies err into one of the status values.
func outcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case circulation.IsRejection(err):
		return StatusRejected
	default:
		return StatusError
	}
}

func toMilliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

func (e Engine) startSpan(ctx context.Context, operation string, attrs map[string]string) (context.Context, circulation.SpanContext) {
	if e.tracingCollector == nil {
		return ctx, nil
	}

	attrs[logAttrOperation] = operation

	return e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, attrs)
}

func (e Engine) finishSpan(span circulation.SpanContext, status string, duration time.Duration, err error) {
	if e.tracingCollector == nil || span == nil {
		return
	}

	attrs := map[string]string{
		logAttrStatus:     status,
		logAttrDurationMS: fmt.Sprintf("%.2f", toMilliseconds(duration)),
	}

	if err != nil {
		attrs[logAttrErrorType] = circulation.ErrorType(err)
		attrs[logAttrError] = err.Error()
	}

	e.tracingCollector.FinishSpan(span, status, attrs)
}

func (e Engine) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextual, ok := e.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	e.metricsCollector.IncrementCounter(metric, labels)
}

func (e Engine) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextual, ok := e.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	e.metricsCollector.RecordDuration(metric, duration, labels)
}

func (e Engine) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if e.metricsCollector == nil {
		return
	}

	if contextual, ok := e.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	e.metricsCollector.RecordValue(metric, value, labels)
}

func (e Engine) recordOperationMetrics(ctx context.Context, operation string, duration time.Duration, err error) {
	status := outcome(err)
	labels := map[string]string{logAttrOperation: operation, logAttrStatus: status}

	e.recordDuration(ctx, OperationDurationMetric, duration, labels)
	e.incrementCounter(ctx, OperationCallsMetric, labels)

	switch {
	case status == StatusRejected:
		e.incrementCounter(ctx, RejectionsMetric, map[string]string{
			logAttrOperation: operation,
			logAttrErrorType: circulation.ErrorType(err),
		})

	case circulation.IsConsistencyFailure(err):
		e.incrementCounter(ctx, ConsistencyFailuresMetric, map[string]string{logAttrOperation: operation})
	}
}

func (e Engine) logInfo(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, msg, args...)
	} else if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e Engine) logWarn(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, msg, args...)
	} else if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e Engine) logError(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, msg, args...)
	} else if e.logger != nil {
		e.logger.Error(msg, args...)
	}
}

func (e Engine) logOutcome(ctx context.Context, operation string, duration time.Duration, err error, args ...any) {
	allArgs := []any{logAttrOperation, operation, logAttrDurationMS, toMilliseconds(duration)}
	allArgs = append(allArgs, args...)

	switch outcome(err) {
	case StatusSuccess:
		e.logInfo(ctx, logMsgOperationCompleted, allArgs...)

	case StatusRejected:
		allArgs = append(allArgs, logAttrErrorType, circulation.ErrorType(err), logAttrError, err.Error())
		e.logInfo(ctx, logMsgOperationRejected, allArgs...)

	default:
		allArgs = append(allArgs, logAttrErrorType, circulation.ErrorType(err), logAttrError, err.Error())

		var consistencyErr *circulation.ConsistencyError
		if errors.As(err, &consistencyErr) {
			allArgs = append(allArgs, logAttrLoanID, consistencyErr.LoanID.String(), logAttrRolledBack, consistencyErr.RolledBack)
			e.logError(ctx, logMsgConsistencyFailure, allArgs...)

			return
		}

		e.logError(ctx, logMsgOperationFailed, allArgs...)
	}
}

// observe records metrics, log and span for one finished engine operation.
func (e Engine) observe(
	ctx context.Context,
	span circulation.SpanContext,
	operation string,
	start time.Time,
	err error,
	args ...any,
) {
	duration := time.Since(start)

	e.recordOperationMetrics(ctx, operation, duration, err)
	e.logOutcome(ctx, operation, duration, err, args...)
	e.finishSpan(span, outcome(err), duration, err)
}
