package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-ingest/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API only. Submitted items are dispatched to the task queue
and processed by separate worker processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true, false)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run task workers and the stale task reaper",
	Long: `Run task workers only. Workers dequeue task references, run the
ingestion pipeline and acknowledge each task once it reaches a terminal state.
The reaper fails tasks whose worker stopped heartbeating and redispatches
pending tasks that were never delivered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), false, true)
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run the HTTP API and workers in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true, true)
	},
}

// run wires the app and runs the API and/or workers until SIGINT or SIGTERM
func run(parent context.Context, api, workers bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ResolvedQueueBackend() == config.QueueBackendMemory && !(api && workers) {
		return errors.New("queue.backend memory requires the all command")
	}

	logger.Info("sercha-ingest starting", "version", version, "api", api, "workers", workers)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	if workers {
		w := a.newWorker()
		if err := w.Start(gctx); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("stopping worker")
			w.Stop()
			return nil
		})
	}

	if api {
		server := a.newServer()
		g.Go(func() error {
			return server.ListenAndServe(gctx, cfg.Server.ShutdownTimeout)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("sercha-ingest stopped")
	return nil
}
