// Package progress provides the event primitives, non-blocking hub, and emitter
// interface the ingest runner uses to report run, source, and item milestones.
// Events are batched on a background goroutine and fanned out to sinks such as
// Prometheus collectors, structured logs, or a stored-movie publisher.
package progress
