package worker

import "github.com/JakeFAU/download-simulator/internal/download"

// Event is what the worker reports to its consumer: one Initialized first,
// then any number of Progress. Only those two types implement it.
type Event[ID comparable] interface {
	isEvent()
}

// Initialized carries the handle used to submit downloads. It is always the
// first event on the stream and is sent exactly once.
type Initialized[ID comparable] struct {
	Downloader *Downloader[ID]
}

// Progress reports one step of the download identified by ID.
type Progress[ID comparable] struct {
	ID    ID
	Event download.Progress
}

func (Initialized[ID]) isEvent() {}
func (Progress[ID]) isEvent()    {}

// kind names a progress event for metrics labels.
func kind(p download.Progress) string {
	switch p.(type) {
	case download.Started:
		return "started"
	case download.Advanced:
		return "advanced"
	case download.Finished:
		return "finished"
	default:
		return "unknown"
	}
}
