// Package oteladapters provides OpenTelemetry adapters for the circulation observability interfaces.
//
// The reservation engine and the PostgreSQL store accept them through their WithContextualLogger,
// WithMetrics and WithTracing options:
//
//	engine, err := reservation.NewEngine(store,
//		reservation.WithContextualLogger(oteladapters.NewSlogBridgeLogger("circulation")),
//		reservation.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("circulation"))),
//		reservation.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("circulation"))),
//	)
package oteladapters
