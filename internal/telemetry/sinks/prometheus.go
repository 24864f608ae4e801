package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/download-simulator/internal/telemetry"
)

// PrometheusSink exports download progress as Prometheus collectors.
type PrometheusSink struct {
	started      prometheus.Counter
	finished     prometheus.Counter
	running      prometheus.Gauge
	stepPercent  prometheus.Histogram
	downloadTime prometheus.Histogram

	tracker *downloadTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_downloads_started_total",
			Help: "Downloads the consumer saw start.",
		}),
		finished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_downloads_finished_total",
			Help: "Downloads the consumer saw finish.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_downloads_running",
			Help: "Downloads started but not yet finished.",
		}),
		stepPercent: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_step_percent",
			Help:    "Reported completion percentage per step, including overshoot.",
			Buckets: []float64{10, 25, 50, 75, 90, 100, 110, 125, 150},
		}),
		downloadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_download_duration_seconds",
			Help:    "Time from start to finish per download.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 15, 20, 30},
		}),
		tracker: newDownloadTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.started,
		s.finished,
		s.running,
		s.stepPercent,
		s.downloadTime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register telemetry collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []telemetry.Record) error {
	for _, rec := range batch {
		key := rec.RunID.String() + "/" + rec.DownloadID
		switch rec.Stage {
		case telemetry.StageStarted:
			s.started.Inc()
			if s.tracker.start(key) {
				s.running.Inc()
			}
		case telemetry.StageAdvanced:
			s.stepPercent.Observe(rec.Percent)
		case telemetry.StageFinished:
			s.finished.Inc()
			if s.tracker.finish(key) {
				s.running.Dec()
			}
			if rec.Elapsed > 0 {
				s.downloadTime.Observe(rec.Elapsed.Seconds())
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type downloadTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newDownloadTracker() *downloadTracker {
	return &downloadTracker{running: make(map[string]struct{})}
}

func (t *downloadTracker) start(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *downloadTracker) finish(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
