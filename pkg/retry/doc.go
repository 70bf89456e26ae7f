// Package retry implements bounded retry with pluggable backoff strategies.
//
// Retries are driven by a predicate over typed errors from pkg/errors, so
// only transient failures (network, rate limit, 5xx) are repeated. Waits
// honor context cancellation.
package retry
