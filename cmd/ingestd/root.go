// Package main is the ingestd binary: the cobra entrypoint that wires
// every component of the ingestion core together, generalizing
// 54b3r-tfai-go's cmd/tfai/commands root+serve split from a single LLM
// agent process into the ingestion pipeline's serve/worker/migrate
// subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ingestd",
		Short:         "Content ingestion and hybrid retrieval service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newWorkerCmd(), newMigrateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("ENV") == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
