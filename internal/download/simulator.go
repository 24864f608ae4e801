package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/download-simulator/internal/clock/system"
)

// ErrFinished is returned when a finished download is asked to advance.
var ErrFinished = errors.New("download: already finished")

// ErrZeroTotal is returned when a download has no size to measure progress against.
var ErrZeroTotal = errors.New("download: total size is zero")

// Clock supplies wall time and timers (useful for testing).
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Simulator holds the dependencies shared by every simulated download: the
// random source, the clock that paces steps and the draw bounds.
type Simulator struct {
	rand   Rand
	clock  Clock
	ranges Ranges
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithRand replaces the random source.
func WithRand(r Rand) Option {
	return func(s *Simulator) {
		if r != nil {
			s.rand = r
		}
	}
}

// WithClock replaces the clock used for step delays.
func WithClock(c Clock) Option {
	return func(s *Simulator) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRanges replaces the draw bounds.
func WithRanges(r Ranges) Option {
	return func(s *Simulator) {
		s.ranges = r
	}
}

// NewSimulator builds a Simulator. Without options it uses DefaultRanges, a
// freshly seeded Rand and the system clock.
func NewSimulator(opts ...Option) (*Simulator, error) {
	s := &Simulator{
		clock:  system.New(),
		ranges: DefaultRanges(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rand == nil {
		s.rand = NewRand()
	}
	if err := s.ranges.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ranges: %w", err)
	}
	return s, nil
}

// Ranges returns the bounds the simulator draws from.
func (s *Simulator) Ranges() Ranges {
	return s.ranges
}

// Advance performs one step of the download and returns the event it
// produced together with the next state. A Downloading step waits for a
// random delay first; if ctx ends during the wait the state is returned
// unchanged with ctx's error.
func (s *Simulator) Advance(ctx context.Context, state State) (Progress, State, error) {
	switch st := state.(type) {
	case StateReady:
		total := drawUint64(s.rand, s.ranges.Total)
		return Started{}, StateDownloading{Total: total}, nil

	case StateDownloading:
		if st.Total == 0 {
			return nil, state, ErrZeroTotal
		}
		if st.Downloaded > st.Total {
			return Finished{}, StateFinished{}, nil
		}
		chunk := drawUint64(s.rand, s.ranges.Chunk)
		delay := drawDuration(s.rand, s.ranges.Delay)
		select {
		case <-ctx.Done():
			return nil, state, ctx.Err()
		case <-s.clock.After(delay):
		}
		downloaded := st.Downloaded + chunk
		next := StateDownloading{Total: st.Total, Downloaded: downloaded}
		return Advanced{Percent: float64(downloaded) / float64(st.Total) * 100}, next, nil

	case StateFinished:
		return nil, state, ErrFinished

	default:
		return nil, state, fmt.Errorf("download: unknown state %T", state)
	}
}

// Machine owns the state of one download and steps it through a Simulator.
// A Machine is not safe for concurrent use; exactly one goroutine drives it.
type Machine struct {
	sim   *Simulator
	state State
}

// NewMachine returns a machine in StateReady for url.
func (s *Simulator) NewMachine(url string) *Machine {
	return &Machine{sim: s, state: StateReady{URL: url}}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state
}

// Step advances the machine once. done is true when the returned event is
// Finished; the machine must not be stepped again after that.
func (m *Machine) Step(ctx context.Context) (Progress, bool, error) {
	p, next, err := m.sim.Advance(ctx, m.state)
	if err != nil {
		return nil, false, err
	}
	m.state = next
	_, done := next.(StateFinished)
	return p, done, nil
}
