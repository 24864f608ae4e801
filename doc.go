// The main package for the simulator executable.
//
// Architecture overview:
//   - Simulation: internal/download advances one download per step. Ready draws a total size and reports Started,
//     Downloading draws a chunk and a delay and reports Advanced with the percentage of the total, and a download
//     whose counter passed its total reports Finished. Percentages above 100 are expected.
//   - Multiplexing: internal/mux drives every live download on its own goroutine and merges their steps into one
//     stream. A download leaves the multiplexer after its final step.
//   - Worker: internal/worker owns the multiplexer, a bounded command channel (32) and a bounded event stream (128).
//     The first event is Initialized and carries the Downloader handle; full channels drop instead of blocking.
//   - Application model: internal/app consumes the stream, tracks requested downloads by id and exposes sorted
//     snapshots. Every applied step is also emitted to the telemetry hub (log and Prometheus sinks).
//   - Surfaces: "simulator run" renders progress bars in the terminal; "simulator serve" exposes the same model over
//     the chi router in internal/api together with /metrics and health endpoints.
//
// Configuration comes from an optional file plus SIMULATOR_* environment variables (Viper); zap provides structured
// logging. SIGINT and SIGTERM cancel the root context, which stops the worker and closes its event stream.
package main
