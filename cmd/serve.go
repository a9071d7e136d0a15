package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	serveAddr  string
	skipWarmup bool
	eagerIndex bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().BoolVar(&skipWarmup, "no-warmup", false, "Skip the model warmup on start")
	serveCmd.Flags().BoolVar(&eagerIndex, "load-index", true, "Load the vector index before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !skipWarmup {
		// A cold model makes the first real question slow; failure is not fatal.
		go a.orchestrator.Warmup(context.WithoutCancel(ctx))
	}
	if eagerIndex {
		if _, err := a.index.EnsureLoaded(ctx, false); err != nil {
			a.logger.Warn("Index not loaded at startup, will retry on first search", "error", err)
		}
	}

	srv := a.server()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	color.Green("Listening on %s", cfg.Server.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.logger.Info("Shutting down HTTP server")
	return srv.Stop(shutdownCtx)
}
