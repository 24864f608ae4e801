package worker

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/download-simulator/internal/metrics"
)

const dropLogInterval = 5 * time.Second

type command[ID comparable] struct {
	id  ID
	url string
}

// Stats is a snapshot of the worker's delivery counters.
type Stats struct {
	SubmissionsAccepted uint64
	SubmissionsDropped  uint64
	EventsDelivered     uint64
	EventsDropped       uint64
}

type counters struct {
	submissionsAccepted atomic.Uint64
	submissionsDropped  atomic.Uint64
	eventsDelivered     atomic.Uint64
	eventsDropped       atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		SubmissionsAccepted: c.submissionsAccepted.Load(),
		SubmissionsDropped:  c.submissionsDropped.Load(),
		EventsDelivered:     c.eventsDelivered.Load(),
		EventsDropped:       c.eventsDropped.Load(),
	}
}

// Downloader is the submission handle of a running worker. It is safe for
// concurrent use and never blocks.
type Downloader[ID comparable] struct {
	commands chan<- command[ID]
	counters *counters
	logger   *zap.Logger
	dropWarn rate.Sometimes
}

func newDownloader[ID comparable](commands chan<- command[ID], c *counters, logger *zap.Logger) *Downloader[ID] {
	return &Downloader[ID]{
		commands: commands,
		counters: c,
		logger:   logger,
		dropWarn: rate.Sometimes{First: 1, Interval: dropLogInterval},
	}
}

// Download asks the worker to start simulating a download of url under id.
// If the command channel is full the request is dropped; the caller is not
// told either way.
func (d *Downloader[ID]) Download(id ID, url string) {
	if d == nil {
		return
	}
	select {
	case d.commands <- command[ID]{id: id, url: url}:
		d.counters.submissionsAccepted.Add(1)
		metrics.ObserveSubmission(metrics.OutcomeAccepted)
	default:
		d.counters.submissionsDropped.Add(1)
		metrics.ObserveSubmission(metrics.OutcomeDropped)
		d.dropWarn.Do(func() {
			d.logger.Warn("download submissions dropped, command channel full",
				zap.Uint64("dropped_total", d.counters.submissionsDropped.Load()))
		})
	}
}

// Stats returns the worker's counters.
func (d *Downloader[ID]) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return d.counters.snapshot()
}
