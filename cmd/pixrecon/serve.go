package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/oklog/pkg/group"
	"github.com/spf13/cobra"

	"pixrecon/internal/app/app"
	"pixrecon/internal/app/config"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/service/reconciler"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API, webhook relay and both reconcilers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, l, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), c, l, true)
		},
	}
}

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Run reconcilers only",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, l, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), c, l, false)
		},
	}
}

func run(ctx context.Context, c config.Config, l logger.Logger, withHTTP bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, c, l, embedMigrations)
	if err != nil {
		return fmt.Errorf("app init: %w", err)
	}
	defer a.Close()

	var g group.Group
	if withHTTP {
		ln, err := net.Listen("tcp", c.Server.Listen)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}

		srv := &http.Server{
			Handler:      a.Router(),
			ReadTimeout:  c.Server.TimeoutRead,
			WriteTimeout: c.Server.TimeoutWrite,
			IdleTimeout:  c.Server.TimeoutIdle,
		}

		g.Add(func() error {
			l.Info().Str("listen_address", c.Server.Listen).Msg("Listening incoming connections")
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctxShutdown); err != nil {
				l.Error().Err(err).Msg("Server shutdown failed")
			}
		})
	}

	for _, rs := range a.Reconcilers() {
		addReconciler(ctx, &g, rs)
	}

	{
		cancelInterrupt := make(chan struct{})
		g.Add(func() error {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)
			select {
			case s := <-sig:
				l.Info().Str("signal", s.String()).Msg("System call")
				return nil
			case <-cancelInterrupt:
				return nil
			}
		}, func(error) {
			close(cancelInterrupt)
		})
	}

	err = g.Run()
	l.Info().Err(err).Msg("Stopped")

	return err
}

func addReconciler(ctx context.Context, g *group.Group, rs *reconciler.Service) {
	ctx, cancel := context.WithCancel(ctx)
	g.Add(func() error {
		return rs.Run(ctx)
	}, func(error) {
		cancel()
	})
}
