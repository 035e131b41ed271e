// Package shell holds caller-side policy around the reservation engine.
//
// The engine never retries. Callers that want to ride out transient persistence failures wrap
// their Borrow and Return calls in RetryWithExponentialBackoff, which retries only errors
// classified by circulation.IsTransient. Rejections and consistency failures fail fast.
package shell
