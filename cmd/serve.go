package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"seat-reservation/internal/reaper"
	"seat-reservation/internal/wire"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background reapers (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	c.log.Info("Starting application",
		zap.String("app", c.cfg.App.Name),
		zap.String("port", c.cfg.App.Port),
		zap.Bool("debug", c.cfg.App.Debug),
		zap.String("driver", c.cfg.Database.Driver),
	)

	rt, err := bootstrap(ctx, c.cfg, c.log, bootstrapOptions{locks: true, events: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	app := wire.Wiring(rt.deps(), rt.health, c.log)

	reapers := reaper.New(rt.repo, rt.publisher, nil, c.cfg.Reaper, c.log, rt.metrics).Start(ctx)
	defer reapers.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", c.cfg.App.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.log.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c.log.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		c.log.Error("Server stopped with error", zap.Error(err))
		return err
	}
	c.log.Info("Server stopped")
	return nil
}
