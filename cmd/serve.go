package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/download-simulator/internal/api"
	"github.com/JakeFAU/download-simulator/internal/id/uuid"
	"github.com/JakeFAU/download-simulator/internal/policy/ratelimit"
)

const readHeaderTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulator behind an HTTP control plane.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				rt.Config.Server.Port = port
			}
			addr := net.JoinHostPort("", strconv.Itoa(rt.Config.Server.Port))
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			return serve(cmd.Context(), rt, lis)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides server.port)")

	return cmd
}

// serve runs the worker, the consumer and the HTTP server until ctx ends or
// one of them fails.
func serve(ctx context.Context, rt *Runtime, lis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := newPipeline(ctx, rt)
	if err != nil {
		_ = lis.Close()
		return err
	}

	handler := api.NewServer(p.app, api.Config{
		Logger: rt.Logger,
		IDs:    uuid.NewUUIDGenerator(),
		Stats:  p.app.Stats,
		Limiter: ratelimit.New(ratelimit.Config{
			RPS:   rt.Config.Server.SubmitRPS,
			Burst: rt.Config.Server.SubmitBurst,
		}),
	}).Handler()
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.consume(gctx)
	})
	g.Go(func() error {
		rt.Logger.Info("server listening", zap.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		rt.Logger.Info("shutting down server")
		shutdownCtx, stop := context.WithTimeout(context.Background(), rt.Config.Server.ShutdownTimeout)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})

	return p.close(g.Wait())
}
