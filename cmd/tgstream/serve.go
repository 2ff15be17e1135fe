// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/tgstream/internal/config"
	"github.com/ManuGH/tgstream/internal/daemon"
	"github.com/ManuGH/tgstream/internal/health"
	tglog "github.com/ManuGH/tgstream/internal/log"
	"github.com/ManuGH/tgstream/internal/version"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		host   string
		port   int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := tglog.WithComponent("daemon")

			cfg, loader, err := root.loadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			// Flags take precedence over file and environment.
			if cmd.Flags().Changed("host") {
				cfg.API.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port = port
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			source := "env+defaults"
			if loader.Path() != "" {
				source = loader.Path()
			}
			logger.Info().
				Str(tglog.FieldEvent, "config.loaded").
				Str("source", source).
				Interface("config", config.Summary(cfg)).
				Msg("loaded configuration")

			if err := health.PerformStartupChecks(ctx, cfg, health.StartupOptions{DryRun: dryRun}); err != nil {
				logger.Error().Err(err).Str(tglog.FieldEvent, "startup.check_failed").
					Msg("startup checks failed, verify configuration")
				return err
			}

			comps, err := daemon.Build(ctx, cfg, daemon.BuildOptions{
				Version: version.Version,
				DryRun:  dryRun,
			})
			if err != nil {
				return fmt.Errorf("build components: %w", err)
			}

			addr := daemon.ListenAddr(cfg)
			mgr, err := daemon.NewManager(daemon.ServerConfig{
				ListenAddr:      addr,
				ShutdownTimeout: cfg.API.ShutdownTimeout,
			}, daemon.Deps{
				Logger: logger,
				Server: comps.API.HTTPServer(addr),
			})
			if err != nil {
				_ = comps.Close(ctx)
				return err
			}

			// Live reload covers the reconnect policy, default profile,
			// log level and health interval.
			app := daemon.NewApp(logger, mgr, config.NewHolder(cfg, loader), comps)
			if err := app.Run(ctx); err != nil {
				return err
			}
			logger.Info().Str(tglog.FieldEvent, "daemon.stopped").Msg("tgstream stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen host (overrides api.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port (overrides api.port)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate calls in memory instead of using the bridge")
	return cmd
}
