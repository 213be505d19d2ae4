package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/app"
	"github.com/coinkrazygaming/coinkrazy2-sub002/routes"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const idleTimeout = 60 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := app.NewDependencies(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := deps.Close(closeCtx); err != nil {
					c.logger.Error("failed to close dependencies", zap.Error(err))
				}
			}()

			if migrate {
				if err := deps.RepoFactory.InitSchema(ctx); err != nil {
					return err
				}
			}

			if err := deps.Start(ctx); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:         c.cfg.Server.Address(),
				Handler:      routes.SetupRoutes(deps),
				ReadTimeout:  c.cfg.Server.ReadTimeout,
				WriteTimeout: c.cfg.Server.WriteTimeout,
				IdleTimeout:  idleTimeout,
			}
			return runServer(ctx, srv, c.cfg.Server.ShutdownTimeout, c.logger)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create missing tables before serving")
	return cmd
}

// runServer serves until ctx is done, then drains in-flight requests for up
// to shutdownTimeout
func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped")
		return nil
	}
}
