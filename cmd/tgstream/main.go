// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command tgstream relays live media into Telegram group calls.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/tgstream/internal/config"
	tglog "github.com/ManuGH/tgstream/internal/log"
	"github.com/ManuGH/tgstream/internal/version"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tgstream",
		Short:         "Relay live streams into Telegram group calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			tglog.Configure(tglog.Config{
				Level:   opts.logLevel,
				Service: "tgstream",
				Version: version.Version,
				JSON:    opts.logJSON,
			})
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit JSON log lines")

	root.AddCommand(
		newServeCmd(opts),
		newStreamCmd(opts),
		newCheckCmd(opts),
		newSessionsCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig applies defaults, the optional file and TG_* variables, in
// that order.
func (o *rootOptions) loadConfig() (config.AppConfig, *config.Loader, error) {
	loader := config.NewLoader(o.configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return cfg, nil, err
	}
	if o.logLevel == "" {
		tglog.Configure(tglog.Config{
			Level:   cfg.Log.Level,
			Service: cfg.Log.Service,
			Version: version.Version,
			JSON:    cfg.Log.JSON || o.logJSON,
		})
	}
	return cfg, loader, nil
}
