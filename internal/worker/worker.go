// Package worker runs the download supervisor: a single goroutine that accepts
// download requests over a bounded command channel, drives every accepted
// download through the simulator and reports their progress on one bounded
// event stream.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/download-simulator/internal/download"
	"github.com/JakeFAU/download-simulator/internal/metrics"
	"github.com/JakeFAU/download-simulator/internal/mux"
)

const (
	// DefaultCommandBuffer is the capacity of the command channel.
	DefaultCommandBuffer = 32
	// DefaultEventBuffer is the capacity of the event stream.
	DefaultEventBuffer = 128
)

// Config controls buffering and the simulation used by the worker.
//   - CommandBuffer: capacity of the command channel (default 32).
//   - EventBuffer: capacity of the event stream (default 128).
//   - Simulator: step function for every download (default download.NewSimulator()).
//   - Logger: optional structured logger.
type Config struct {
	CommandBuffer int
	EventBuffer   int
	Simulator     *download.Simulator
	Logger        *zap.Logger
}

func (c Config) withDefaults() (Config, error) {
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = DefaultCommandBuffer
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Simulator == nil {
		sim, err := download.NewSimulator()
		if err != nil {
			return c, fmt.Errorf("default simulator: %w", err)
		}
		c.Simulator = sim
	}
	return c, nil
}

// supervisor owns the multiplexer, the receive end of the command channel and
// the send end of the event stream.
type supervisor[ID comparable] struct {
	cfg      Config
	logger   *zap.Logger
	events   chan Event[ID]
	counters *counters
	dropWarn rate.Sometimes
}

// Start launches a worker and returns its event stream. The first event is
// always Initialized. The stream is closed after ctx is cancelled and the
// worker has stopped every download; nothing else ends it.
func Start[ID comparable](ctx context.Context, cfg Config) (<-chan Event[ID], error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	s := &supervisor[ID]{
		cfg:      cfg,
		logger:   cfg.Logger.Named("worker"),
		events:   make(chan Event[ID], cfg.EventBuffer),
		counters: &counters{},
		dropWarn: rate.Sometimes{First: 1, Interval: dropLogInterval},
	}
	go s.run(ctx)
	return s.events, nil
}

func (s *supervisor[ID]) run(ctx context.Context) {
	defer close(s.events)

	commands := make(chan command[ID], s.cfg.CommandBuffer)
	machines := mux.New[ID, download.Progress](ctx,
		mux.WithLogger(s.logger),
		mux.WithLiveHook(metrics.SetLiveDownloads))
	defer machines.Close()

	handle := newDownloader(commands, s.counters, s.logger)
	select {
	case s.events <- Initialized[ID]{Downloader: handle}:
	case <-ctx.Done():
		return
	}
	s.logger.Debug("worker running",
		zap.Int("command_buffer", s.cfg.CommandBuffer),
		zap.Int("event_buffer", s.cfg.EventBuffer))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("worker stopping", zap.Int("live", machines.Live()))
			return
		case cmd := <-commands:
			if machines.Register(cmd.id, s.cfg.Simulator.NewMachine(cmd.url)) {
				s.logger.Debug("download registered", zap.Any("id", cmd.id), zap.String("url", cmd.url))
			}
		case item := <-machines.Ready():
			s.forward(item)
		}
	}
}

// forward hands a progress event to the consumer without blocking. When the
// event stream is full the event is dropped.
func (s *supervisor[ID]) forward(item mux.Item[ID, download.Progress]) {
	k := kind(item.Event)
	select {
	case s.events <- Progress[ID]{ID: item.ID, Event: item.Event}:
		s.counters.eventsDelivered.Add(1)
		metrics.ObserveEvent(k, metrics.OutcomeDelivered)
	default:
		s.counters.eventsDropped.Add(1)
		metrics.ObserveEvent(k, metrics.OutcomeDropped)
		s.dropWarn.Do(func() {
			s.logger.Warn("progress events dropped, event stream full",
				zap.Uint64("dropped_total", s.counters.eventsDropped.Load()))
		})
	}
}
