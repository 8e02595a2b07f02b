package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/stagepass/httpapi"
	"github.com/MrEthical07/stagepass/internal/observability"
	promexport "github.com/MrEthical07/stagepass/metrics/export/prometheus"
	"github.com/MrEthical07/stagepass/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the authentication API",
		Long: `Serve the JSON API on http.addr and metrics plus health probes on
http.metrics_addr until SIGINT or SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		errutil.LogError(ctx, logger, "startup failed", err)
		return err
	}
	defer rt.Close()

	api, err := httpapi.NewServer(rt.engine, httpapi.WithLogger(logger))
	if err != nil {
		return err
	}
	apiServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	obs := observability.NewServer(cfg.HTTP.MetricsAddr, logger, rt.Ready, promexport.NewCollector(rt.engine))
	obsErr, err := obs.Start()
	if err != nil {
		return err
	}

	apiErr := make(chan error, 1)
	go func() {
		defer close(apiErr)
		logger.Info("api server started", "addr", cfg.HTTP.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			apiErr <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-apiErr:
	case serveErr = <-obsErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", "error", err)
	}
	if err := obs.Stop(shutdownCtx); err != nil {
		logger.Error("observability shutdown failed", "error", err)
	}

	if serveErr != nil {
		return oops.Code("SERVE_FAILED").Wrap(serveErr)
	}
	return nil
}
