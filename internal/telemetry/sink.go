package telemetry

import "context"

// Sink consumes batches of records. Implementations must honor ctx deadlines
// and be safe for repeated calls.
type Sink interface {
	Consume(ctx context.Context, batch []Record) error
	Close(ctx context.Context) error
}

// Emitter publishes individual records. Hub satisfies it.
type Emitter interface {
	Emit(rec Record)
}

// Discard is an Emitter that drops everything.
type Discard struct{}

// Emit implements Emitter.
func (Discard) Emit(Record) {}
