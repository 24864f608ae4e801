// Package mux merges the output of many independently stepping machines into
// a single stream of (id, event) items.
//
// Every registered machine is driven by its own goroutine. A goroutine steps
// its machine, hands the result to the shared output channel and only then
// steps again, so each machine has at most one result outstanding. When a
// machine reports that it is done the goroutine exits and the machine leaves
// the live set.
package mux

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Next once the Mux has been closed.
var ErrClosed = errors.New("mux: closed")

// Machine produces one event per Step. done reports that the event was the
// machine's last; Step is never called again after that or after an error.
type Machine[E any] interface {
	Step(ctx context.Context) (event E, done bool, err error)
}

// Item pairs an event with the id of the machine that produced it.
type Item[ID comparable, E any] struct {
	ID    ID
	Event E
}

type options struct {
	logger *zap.Logger
	onLive func(int)
}

// Option customises a Mux.
type Option func(*options)

// WithLogger sets the logger used for registration and deregistration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLiveHook calls fn with the new live count every time a machine is
// registered or deregistered. Calls are serialized.
func WithLiveHook(fn func(live int)) Option {
	return func(o *options) {
		o.onLive = fn
	}
}

// Mux holds the live machines and merges their events.
type Mux[ID comparable, E any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	onLive func(int)
	out    chan Item[ID, E]

	mu      sync.Mutex
	running sync.WaitGroup
	live    map[uint64]ID
	next    uint64
	closed  bool
}

// New creates a Mux. Cancelling ctx stops every machine, the same as Close
// except that it does not wait.
func New[ID comparable, E any](ctx context.Context, opts ...Option) *Mux[ID, E] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Mux[ID, E]{
		ctx:    ctx,
		cancel: cancel,
		logger: o.logger.Named("mux"),
		onLive: o.onLive,
		out:    make(chan Item[ID, E]),
		live:   make(map[uint64]ID),
	}
}

// Register adds a machine under id and starts stepping it. It returns false
// if the Mux is closed. Ids are not checked for uniqueness.
func (m *Mux[ID, E]) Register(id ID, machine Machine[E]) bool {
	// Either the goroutine is never started or Close waits for it.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	handle := m.next
	m.next++
	m.live[handle] = id
	m.running.Add(1)
	m.notifyLocked()
	m.mu.Unlock()

	m.logger.Debug("machine registered", zap.Any("id", id), zap.Uint64("handle", handle))
	go m.drive(handle, id, machine)
	return true
}

func (m *Mux[ID, E]) drive(handle uint64, id ID, machine Machine[E]) {
	defer m.running.Done()
	defer m.deregister(handle)

	for {
		event, done, err := machine.Step(m.ctx)
		if err != nil {
			if m.ctx.Err() == nil {
				m.logger.Warn("machine step failed", zap.Any("id", id), zap.Error(err))
			}
			return
		}
		select {
		case m.out <- Item[ID, E]{ID: id, Event: event}:
		case <-m.ctx.Done():
			return
		}
		if done {
			return
		}
	}
}

// deregister removes a machine from the live set once its goroutine ends.
func (m *Mux[ID, E]) deregister(handle uint64) {
	m.mu.Lock()
	id, ok := m.live[handle]
	delete(m.live, handle)
	if ok {
		m.notifyLocked()
	}
	m.mu.Unlock()
	if ok {
		m.logger.Debug("machine deregistered", zap.Any("id", id), zap.Uint64("handle", handle))
	}
}

// notifyLocked reports the live count; m.mu must be held.
func (m *Mux[ID, E]) notifyLocked() {
	if m.onLive != nil {
		m.onLive(len(m.live))
	}
}

// Ready returns the channel items are delivered on. It is closed after Close
// has stopped every machine.
func (m *Mux[ID, E]) Ready() <-chan Item[ID, E] {
	return m.out
}

// Next blocks until some machine has produced an event, ctx ends or the Mux
// is closed.
func (m *Mux[ID, E]) Next(ctx context.Context) (Item[ID, E], error) {
	select {
	case <-ctx.Done():
		return Item[ID, E]{}, ctx.Err()
	case item, ok := <-m.out:
		if !ok {
			return Item[ID, E]{}, ErrClosed
		}
		return item, nil
	}
}

// Live reports how many machines are still registered.
func (m *Mux[ID, E]) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Close stops every machine, waits for their goroutines and closes Ready.
// Further calls are no-ops.
func (m *Mux[ID, E]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.running.Wait()
	close(m.out)
}
