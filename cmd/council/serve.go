package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/council/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the council over HTTP",
	Long: `Expose the council as a JSON endpoint.

  POST /api/council   {"prompt": "..."}  -> deliberation result
  GET  /healthz

Concurrent deliberations are bounded by server.max_concurrent_runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(rootVerbose)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(a.pipeline, server.Config{
		Addr:              addr,
		MaxConcurrentRuns: a.cfg.Server.MaxConcurrentRuns,
	}, a.logger)

	fmt.Fprintf(cmd.OutOrStdout(), "Council listening on %s\n", addr)
	a.logger.Info("serving", zap.String("addr", addr))
	return srv.ListenAndServe(ctx)
}
