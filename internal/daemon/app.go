// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/tgstream/internal/config"
	"github.com/ManuGH/tgstream/internal/log"
)

// App owns the long-lived runtime: the server manager, the reconnector
// consumer, the health monitor and config reload wiring.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.Holder
	comps        *Components
	reloadSignal os.Signal

	monitorInterval time.Duration
}

// NewApp creates a new App orchestrator. cfgHolder may be nil, which
// disables live reload.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.Holder, comps *Components) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		comps:        comps,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is
// cancelled or a fatal error occurs. On return the server is drained and
// every component is closed.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	if a.comps == nil {
		return ErrMissingComponents
	}

	// Runs after the HTTP server has drained.
	a.manager.RegisterShutdownHook("components", a.comps.Close)

	g, ctx := errgroup.WithContext(ctx)

	interval := config.Defaults().Health.Interval
	if a.cfgHolder != nil {
		interval = a.cfgHolder.Get().Health.Interval
	}
	a.monitorInterval = interval
	a.comps.Monitor.Start(interval)

	g.Go(func() error {
		return a.comps.Reconnector.Run(ctx, a.comps.Registry.Disconnects())
	})

	if a.cfgHolder != nil {
		// Best-effort: startup does not fail if the watcher cannot start.
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}

		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					if ctx.Err() == nil {
						a.apply(cfg)
					}
				}
			}
		})

		if a.reloadSignal != nil {
			g.Go(func() error {
				hupChan := make(chan os.Signal, 1)
				signal.Notify(hupChan, a.reloadSignal)
				defer signal.Stop(hupChan)

				for {
					select {
					case <-ctx.Done():
						return nil
					case <-hupChan:
						a.logger.Info().
							Str(log.FieldEvent, "config.reload_signal").
							Str("signal", a.reloadSignal.String()).
							Msg("received reload signal, reloading config")

						if err := a.cfgHolder.Reload(ctx); err != nil {
							a.logger.Warn().
								Err(err).
								Str(log.FieldEvent, "config.reload_failed").
								Msg("config reload failed")
						}
					}
				}
			})
		}
	}

	g.Go(func() error {
		return a.manager.Start(ctx)
	})

	err := g.Wait()
	if a.cfgHolder != nil {
		a.cfgHolder.Stop()
	}
	return err
}

// apply pushes the live-reloadable settings of cfg into the running
// components. Listen address and bridge changes need a restart.
func (a *App) apply(cfg config.AppConfig) {
	a.comps.Reconnector.UpdatePolicy(ReconnectPolicy(cfg.Reconnect))
	a.comps.SetDefaultProfile(cfg.API.DefaultProfile)

	if err := log.SetLevel(cfg.Log.Level); err != nil {
		a.logger.Warn().Err(err).Str("level", cfg.Log.Level).Msg("ignoring invalid log level")
	}

	// Start is a no-op while running, so restart to pick up the interval.
	if cfg.Health.Interval != a.monitorInterval {
		a.monitorInterval = cfg.Health.Interval
		a.comps.Monitor.Stop()
		a.comps.Monitor.Start(cfg.Health.Interval)
	}

	a.logger.Info().Str(log.FieldEvent, "config.applied").Msg("applied reloaded configuration")
}
