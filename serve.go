package main

import (
	"os"
	"os/signal"
	"syscall"

	"gridvi/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the solver and sampler over HTTP",
	Long: `Starts an HTTP server exposing POST /v1/value-iteration, POST /v1/trajectories,
the websocket progress stream GET /v1/value-iteration/stream, /healthz and /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.NewServer(addr, logger).Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
}
