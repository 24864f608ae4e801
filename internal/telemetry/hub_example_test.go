package telemetry

import (
	"context"
	"fmt"
	"time"
)

type sinkFunc func(context.Context, []Record) error

func (f sinkFunc) Consume(ctx context.Context, batch []Record) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting records and flushing via Close.
func ExampleHub_Emit() {
	var peak float64
	sink := sinkFunc(func(_ context.Context, batch []Record) error {
		for _, rec := range batch {
			if rec.Stage == StageAdvanced && rec.Percent > peak {
				peak = rec.Percent
			}
		}
		return nil
	})
	hub := NewHub(Config{MaxBatchRecords: 1, MaxBatchWait: time.Second}, sink)

	ts := time.Unix(0, 0)
	hub.Emit(Record{DownloadID: "0", TS: ts, Stage: StageStarted})
	hub.Emit(Record{DownloadID: "0", TS: ts, Stage: StageAdvanced, Percent: 62.5})
	hub.Emit(Record{DownloadID: "0", TS: ts, Stage: StageAdvanced, Percent: 125})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("peak percent: %.1f\n", peak)
	// Output:
	// peak percent: 125.0
}
