// Package app is the headless application model that consumes the worker's
// event stream. It tracks the downloads the user started, applies progress
// updates to them and exposes a sorted snapshot for renderers.
package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/download-simulator/internal/clock/system"
	"github.com/JakeFAU/download-simulator/internal/download"
	"github.com/JakeFAU/download-simulator/internal/telemetry"
	"github.com/JakeFAU/download-simulator/internal/worker"
)

// Title is the application's window title.
const Title = "Subscription_Test"

// InitializingText is what renderers show before the worker is ready.
const InitializingText = "App is initializing..."

const urlFormat = "http://somer.server/files/%d"

// State names the lifecycle phase of the App.
type State string

// Supported states.
const (
	StateInit    State = "init"
	StateRunning State = "running"
)

// Submitter starts downloads. *worker.Downloader[int] satisfies it.
type Submitter interface {
	Download(id int, url string)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// DownloadView is a read-only copy of one tracked download.
type DownloadView struct {
	ID       int     `json:"id"`
	URL      string  `json:"url"`
	Progress float64 `json:"progress"`
	Finished bool    `json:"finished"`
}

type tracked struct {
	url       string
	progress  float64
	finished  bool
	startedAt time.Time
}

// App is safe for concurrent use.
type App struct {
	logger  *zap.Logger
	emitter telemetry.Emitter
	clock   Clock
	runID   uuid.UUID

	mu         sync.Mutex
	state      State
	nextID     int
	downloader Submitter
	downloads  map[int]*tracked

	initOnce    sync.Once
	initialized chan struct{}
}

// Option customises an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithEmitter sends every handled progress step to e.
func WithEmitter(e telemetry.Emitter) Option {
	return func(a *App) {
		if e != nil {
			a.emitter = e
		}
	}
}

// WithClock replaces the clock used to timestamp telemetry.
func WithClock(c Clock) Option {
	return func(a *App) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithRunID sets the session id attached to telemetry records.
func WithRunID(id uuid.UUID) Option {
	return func(a *App) {
		a.runID = id
	}
}

// New returns an App in the init state.
func New(opts ...Option) *App {
	a := &App{
		logger:      zap.NewNop(),
		emitter:     telemetry.Discard{},
		clock:       system.New(),
		state:       StateInit,
		downloads:   make(map[int]*tracked),
		initialized: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("app")
	return a
}

// Title returns the application title.
func (a *App) Title() string {
	return Title
}

// State returns the current lifecycle phase.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// RunID returns the session id attached to telemetry.
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// Initialized is closed once the worker's handle has arrived.
func (a *App) Initialized() <-chan struct{} {
	return a.initialized
}

// Handle applies one worker event.
func (a *App) Handle(ev worker.Event[int]) {
	switch e := ev.(type) {
	case worker.Initialized[int]:
		a.mu.Lock()
		a.state = StateRunning
		a.downloader = e.Downloader
		a.downloads = make(map[int]*tracked)
		a.mu.Unlock()
		a.initOnce.Do(func() { close(a.initialized) })
		a.logger.Info("downloader ready")
	case worker.Progress[int]:
		a.handleProgress(e.ID, e.Event)
	default:
		a.logger.Warn("unknown worker event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (a *App) handleProgress(id int, p download.Progress) {
	now := a.clock.Now()

	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return
	}
	d, ok := a.downloads[id]
	if !ok {
		a.mu.Unlock()
		a.logger.Debug("progress for untracked download", zap.Int("id", id), zap.Stringer("event", p))
		return
	}
	rec := telemetry.Record{
		RunID:      a.runID,
		DownloadID: strconv.Itoa(id),
		TS:         now,
		URL:        d.url,
	}
	switch ev := p.(type) {
	case download.Started:
		d.startedAt = now
		rec.Stage = telemetry.StageStarted
	case download.Advanced:
		d.progress = ev.Percent
		rec.Stage = telemetry.StageAdvanced
		rec.Percent = ev.Percent
	case download.Finished:
		d.finished = true
		rec.Stage = telemetry.StageFinished
		if !d.startedAt.IsZero() {
			rec.Elapsed = now.Sub(d.startedAt)
		}
	}
	a.mu.Unlock()

	a.emitter.Emit(rec)
}

// StartDownload allocates the next id, tracks it and submits it to the
// worker. It returns false while the App is still initializing.
func (a *App) StartDownload() (int, bool) {
	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return 0, false
	}
	id := a.nextID
	a.nextID++
	url := fmt.Sprintf(urlFormat, id)
	a.downloads[id] = &tracked{url: url}
	downloader := a.downloader
	a.mu.Unlock()

	downloader.Download(id, url)
	a.logger.Debug("download requested", zap.Int("id", id), zap.String("url", url))
	return id, true
}

// Stats returns the worker's delivery counters, or zero values while the
// App is initializing.
func (a *App) Stats() worker.Stats {
	a.mu.Lock()
	d := a.downloader
	a.mu.Unlock()
	if s, ok := d.(interface{ Stats() worker.Stats }); ok {
		return s.Stats()
	}
	return worker.Stats{}
}

// Clear forgets every tracked download. Ids keep counting up, so events from
// downloads still running in the worker are ignored from here on.
func (a *App) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateRunning {
		return
	}
	a.downloads = make(map[int]*tracked)
}

// Snapshot returns the tracked downloads ordered by id.
func (a *App) Snapshot() []DownloadView {
	a.mu.Lock()
	out := make([]DownloadView, 0, len(a.downloads))
	for id, d := range a.downloads {
		out = append(out, DownloadView{ID: id, URL: d.url, Progress: d.progress, Finished: d.finished})
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Consume feeds events into Handle until the stream closes or ctx ends.
func (a *App) Consume(ctx context.Context, events <-chan worker.Event[int]) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("consume events: %w", ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.Handle(ev)
		}
	}
}
