package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/download-simulator/internal/app"
)

type runOptions struct {
	count   int
	plain   bool
	refresh time.Duration
	timeout time.Duration
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a batch of simulated downloads and render their progress.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			return runDownloads(cmd.Context(), rt, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.count, "count", "n", 3, "number of downloads to start")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "print one line per finished download instead of redrawing bars")
	cmd.Flags().DurationVar(&opts.refresh, "refresh", 100*time.Millisecond, "redraw interval")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "give up after this long (0 waits indefinitely)")

	return cmd
}

func runDownloads(ctx context.Context, rt *Runtime, opts runOptions, out io.Writer) error {
	// Submissions beyond the command buffer are dropped and would never finish.
	if opts.count < 1 || opts.count > rt.Config.Worker.CommandBuffer {
		return fmt.Errorf("--count must be between 1 and %d", rt.Config.Worker.CommandBuffer)
	}
	if opts.refresh <= 0 {
		return errors.New("--refresh must be positive")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	p, err := newPipeline(ctx, rt)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.consume(gctx)
	})
	g.Go(func() error {
		// Stopping the watcher stops the consumer and the worker with it.
		defer cancel()
		return watch(gctx, p.app, opts, newRenderer(out, opts.plain))
	})
	return p.close(g.Wait())
}

func watch(ctx context.Context, a *app.App, opts runOptions, r *renderer) error {
	r.header(a.Title())

	select {
	case <-a.Initialized():
	case <-ctx.Done():
		return fmt.Errorf("wait for worker: %w", ctx.Err())
	}

	for i := 0; i < opts.count; i++ {
		if _, ok := a.StartDownload(); !ok {
			return errors.New("app is not running")
		}
	}

	ticker := time.NewTicker(opts.refresh)
	defer ticker.Stop()
	for {
		snap := a.Snapshot()
		r.draw(snap)
		if allFinished(snap) {
			r.summary(snap)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for downloads: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func allFinished(snap []app.DownloadView) bool {
	for _, d := range snap {
		if !d.Finished {
			return false
		}
	}
	return len(snap) > 0
}
