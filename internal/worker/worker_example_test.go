package worker_test

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/download-simulator/internal/clock/fake"
	"github.com/JakeFAU/download-simulator/internal/download"
	"github.com/JakeFAU/download-simulator/internal/worker"
)

// ExampleStart runs one download with fixed draws: a 10_000 unit file
// arriving in 5_000 unit chunks overshoots to 150% before finishing.
func ExampleStart() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim, err := download.NewSimulator(
		download.WithClock(fake.New(time.Time{})),
		download.WithRanges(download.Ranges{
			Total: download.Range{Min: 10_000, Max: 10_001},
			Chunk: download.Range{Min: 5_000, Max: 5_001},
			Delay: download.DurationRange{Min: 100 * time.Millisecond, Max: 100*time.Millisecond + 1},
		}),
	)
	if err != nil {
		fmt.Println("simulator:", err)
		return
	}

	events, err := worker.Start[string](ctx, worker.Config{Simulator: sim})
	if err != nil {
		fmt.Println("start:", err)
		return
	}

	for ev := range events {
		switch e := ev.(type) {
		case worker.Initialized[string]:
			fmt.Println("initialized")
			e.Downloader.Download("report.pdf", "http://somer.server/files/report.pdf")
		case worker.Progress[string]:
			fmt.Println(e.ID, e.Event)
			if _, done := e.Event.(download.Finished); done {
				return
			}
		}
	}
	// Output:
	// initialized
	// report.pdf started
	// report.pdf advanced(50.00%)
	// report.pdf advanced(100.00%)
	// report.pdf advanced(150.00%)
	// report.pdf finished
}
