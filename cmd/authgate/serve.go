package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/authgate/pkg/config"
	"github.com/rhuss/authgate/pkg/debug"
	"github.com/rhuss/authgate/pkg/gateway"
	"github.com/rhuss/authgate/pkg/observability"
	transporthttp "github.com/rhuss/authgate/pkg/transport/http"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (YAML)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	debug.Init(cfg.Log.Debug, cfg.Log.Level, cfg.Log.Format)
	logger := slog.Default()
	debug.Log("config", "configuration loaded", "links", len(cfg.Auth.Links), "port", cfg.Server.Port)

	if tr := cfg.Observability.Tracing; tr.Enabled {
		shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
			ServiceName: tr.ServiceName,
			Endpoint:    tr.Endpoint,
			Insecure:    tr.Insecure,
		})
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("flushing spans failed", "error", err)
			}
		}()
		logger.Info("tracing enabled", "endpoint", tr.Endpoint)
	}

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building auth chain: %w", err)
	}
	defer gw.Close()

	srv := transporthttp.NewServer(newHandler(gw, cfg),
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	)
	return srv.ListenAndServe()
}
