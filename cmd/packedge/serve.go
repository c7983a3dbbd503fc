package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cordum/packedge/core/edge/gateway"
	"github.com/cordum/packedge/core/infra/buildinfo"
	"github.com/cordum/packedge/core/infra/logging"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the edge router",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Info("packedge", "edge router starting")
	buildinfo.Log("packedge")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return gateway.Run(ctx, cfg)
}
