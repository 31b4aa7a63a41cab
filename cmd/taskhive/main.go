package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"taskhive/internal/config"
	"taskhive/internal/postgres"
	serverhttp "taskhive/internal/server/http"
)

func main() {
	root := &cobra.Command{
		Use:           "taskhive",
		Short:         "Task management service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), workerCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "taskhive:", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// serveCmd runs everything in one process: the API server, the job worker,
// and the cron scheduler.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server with an embedded worker and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx, config.Load(nil))
			if err != nil {
				return err
			}
			defer a.close()

			srv := serverhttp.NewServer(":"+a.cfg.Port, a.handler, a.logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			g.Go(func() error { return a.worker.Run(gctx) })
			g.Go(func() error { return a.scheduler.Run(gctx) })

			err = g.Wait()
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

// workerCmd runs only the job worker and scheduler, for deployments that
// scale background processing separately from the API.
func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background job worker and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx, config.Load(nil))
			if err != nil {
				return err
			}
			defer a.close()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.worker.Run(gctx) })
			g.Go(func() error { return a.scheduler.Run(gctx) })

			err = g.Wait()
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

// migrateCmd applies pending migrations and exits.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg := config.Load(nil)
			cfg.MigrateOnStart = false
			pool, err := postgres.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			return postgres.Migrate(pool)
		},
	}
}
