// Package telemetry batches download progress records off the consumer's hot
// path and fans them out to pluggable sinks such as structured logs and
// Prometheus collectors. Emit never blocks; when the buffer is full records
// are dropped and a rate-limited warning is logged.
package telemetry
