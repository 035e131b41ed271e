// Package testdoubles provides spies for the circulation observability interfaces.
//
//   - LoggerSpy: records Logger and ContextualLogger calls by level
//   - MetricsCollectorSpy: records durations, counters and values, with or without context
//   - TracingCollectorSpy: records started and finished spans
//
// All spies are safe for concurrent use.
package testdoubles
