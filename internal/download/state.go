// Package download models a single simulated download: its state, the
// progress events it reports, and the step function that moves it from one
// state to the next.
package download

import "fmt"

// State is the closed set of states a simulated download can be in. Only
// StateReady, StateDownloading and StateFinished implement it.
type State interface {
	isState()
}

// StateReady is the initial state. URL is kept for bookkeeping only; the
// simulation never reads it.
type StateReady struct {
	URL string
}

// StateDownloading tracks how far a download has progressed. Downloaded
// strictly increases from one step to the next.
type StateDownloading struct {
	Total      uint64
	Downloaded uint64
}

// StateFinished is terminal. A machine in this state produces no more events.
type StateFinished struct{}

func (StateReady) isState()       {}
func (StateDownloading) isState() {}
func (StateFinished) isState()    {}

// Progress is the closed set of events a download reports, one per step.
type Progress interface {
	isProgress()
	fmt.Stringer
}

// Started is reported once, when a download leaves StateReady.
type Started struct{}

// Advanced reports the completed percentage after a chunk arrives. Percent is
// not clamped; the last chunk can push it past 100.
type Advanced struct {
	Percent float64
}

// Finished is reported once, after the download has overshot its total.
type Finished struct{}

func (Started) isProgress()  {}
func (Advanced) isProgress() {}
func (Finished) isProgress() {}

func (Started) String() string    { return "started" }
func (a Advanced) String() string { return fmt.Sprintf("advanced(%.2f%%)", a.Percent) }
func (Finished) String() string   { return "finished" }
