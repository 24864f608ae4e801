// Package sinks implements telemetry consumers: structured logging and
// Prometheus collectors. Each satisfies telemetry.Sink.
package sinks
