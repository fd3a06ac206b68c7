package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newWorkerCmd runs the bounded-concurrency job pool (component C6)
// without the HTTP boundary, for deployments that scale ingestion
// workers independently of the request-facing API.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background job worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			d, err := buildDeps(ctx, logger)
			if err != nil {
				return err
			}
			defer d.close()

			if err := d.initSchema(ctx); err != nil {
				return err
			}

			if n, err := d.queue.SweepStale(ctx, d.cfg.SessionHeartbeatTimeout); err != nil {
				return err
			} else if n > 0 {
				logger.Info("requeued stale jobs", zap.Int("jobs", n))
			}
			if n, err := d.sessions.Sweep(ctx); err != nil {
				return err
			} else if n > 0 {
				logger.Info("reaped stale sessions", zap.Int("sessions", n))
			}

			pool := d.workerPool(logger)
			logger.Info("ingestd worker starting", zap.Int("workers", d.cfg.WorkerCount))
			pool.Run(ctx)
			return nil
		},
	}
}
