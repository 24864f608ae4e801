package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/download-simulator/internal/app"
	"github.com/JakeFAU/download-simulator/internal/clock/system"
	"github.com/JakeFAU/download-simulator/internal/download"
	"github.com/JakeFAU/download-simulator/internal/id/uuid"
	"github.com/JakeFAU/download-simulator/internal/telemetry"
	"github.com/JakeFAU/download-simulator/internal/telemetry/sinks"
	"github.com/JakeFAU/download-simulator/internal/worker"
)

// metricsRegisterer receives the telemetry collectors. Tests swap it for a
// fresh registry.
var metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer

const hubCloseTimeout = 5 * time.Second

// pipeline is a started worker plus the App consuming it.
type pipeline struct {
	app    *app.App
	events <-chan worker.Event[int]
	hub    *telemetry.Hub
	logger *zap.Logger
}

// newPipeline builds the simulator, the telemetry hub and the App, and starts
// the worker under ctx. Cancelling ctx tears the worker down.
func newPipeline(ctx context.Context, rt *Runtime) (*pipeline, error) {
	cfg := rt.Config
	logger := rt.Logger

	sim, err := download.NewSimulator(
		download.WithRanges(cfg.Ranges()),
		download.WithRand(cfg.Rand()),
		download.WithClock(system.New()),
	)
	if err != nil {
		return nil, fmt.Errorf("build simulator: %w", err)
	}

	runID, err := uuid.NewUUIDGenerator().NewRawID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	opts := []app.Option{app.WithLogger(logger), app.WithRunID(runID)}
	var hub *telemetry.Hub
	if cfg.Telemetry.Enabled {
		promSink, err := sinks.NewPrometheusSink(metricsRegisterer)
		if err != nil {
			return nil, fmt.Errorf("telemetry sink: %w", err)
		}
		hubCfg := cfg.HubConfig()
		hubCfg.Logger = logger
		hub = telemetry.NewHub(hubCfg, sinks.NewLogSink(logger), promSink)
		opts = append(opts, app.WithEmitter(hub))
	}

	events, err := worker.Start[int](ctx, worker.Config{
		CommandBuffer: cfg.Worker.CommandBuffer,
		EventBuffer:   cfg.Worker.EventBuffer,
		Simulator:     sim,
		Logger:        logger,
	})
	if err != nil {
		_ = hub.Close(context.Background())
		return nil, fmt.Errorf("start worker: %w", err)
	}

	logger.Info("pipeline started",
		zap.Stringer("run_id", runID),
		zap.Bool("telemetry", hub != nil))

	return &pipeline{
		app:    app.New(opts...),
		events: events,
		hub:    hub,
		logger: logger,
	}, nil
}

// consume runs the App's event loop. A cancelled ctx is a normal stop.
func (p *pipeline) consume(ctx context.Context) error {
	if err := p.app.Consume(ctx, p.events); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// close flushes telemetry, folding any failure into err.
func (p *pipeline) close(err error) error {
	var result *multierror.Error
	if err != nil {
		result = multierror.Append(result, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), hubCloseTimeout)
	defer cancel()
	if cerr := p.hub.Close(ctx); cerr != nil {
		result = multierror.Append(result, fmt.Errorf("close telemetry: %w", cerr))
	}
	return result.ErrorOrNil()
}
