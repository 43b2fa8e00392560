// Package sinks implements concrete progress consumers: Prometheus collectors,
// structured logging, and a publisher that announces newly stored movies. Each
// sink satisfies progress.Sink and is safe for repeated Consume/Close cycles.
package sinks
