package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newServeCmd starts the HTTP boundary (process-url/search/etc.) without
// claiming any background jobs itself — in a multi-process deployment
// `ingestd worker` runs alongside it.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ingestion HTTP and SSE API",
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

			srv := &http.Server{Addr: d.cfg.HTTPAddr, Handler: d.server.Engine()}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("ingestd serve listening", zap.String("addr", d.cfg.HTTPAddr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			}
		},
	}
}
