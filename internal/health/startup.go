// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tgstream/internal/config"
	"github.com/ManuGH/tgstream/internal/log"
)

// ErrBridgeNotConfigured is returned when serving without a call bridge.
var ErrBridgeNotConfigured = errors.New("bridge.url is not configured")

// StartupOptions tune the pre-flight checks.
type StartupOptions struct {
	// DryRun serves with the in-memory transport, so no bridge is needed.
	DryRun bool
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// PerformStartupChecks validates the environment and dependencies before starting the server.
// Missing tools only warn: sessions that need them fail individually.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig, opts StartupOptions) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	// a. Listen address
	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid API listen address %q: %w", addr, err)
	}
	logger.Info().Str("addr", addr).Msg("API listen address is valid")

	// b. Call bridge
	if opts.DryRun {
		logger.Warn().Msg("dry-run: using in-memory call transport, no media reaches any chat")
	} else {
		if cfg.Bridge.URL == "" {
			return ErrBridgeNotConfigured
		}
		u, err := url.Parse(cfg.Bridge.URL)
		if err != nil {
			return fmt.Errorf("invalid bridge URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("bridge URL scheme must be http or https, got: %s", u.Scheme)
		}
		if u.Scheme == "http" && cfg.Bridge.Token != "" && !isLoopback(u.Hostname()) {
			logger.Warn().Str("url", config.MaskURL(cfg.Bridge.URL)).
				Msg("bridge token is sent over plain http to a non-loopback host")
		}
		logger.Info().Str("url", config.MaskURL(cfg.Bridge.URL)).Msg("bridge URL is valid")
	}

	// c. External tools
	checkTool(logger, lookPath, "ffmpeg", cfg.FFmpeg.Path, "transcoded sessions will fail")
	checkTool(logger, lookPath, "yt-dlp", cfg.Resolver.Path, "video platform sources will fail")

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkTool(logger zerolog.Logger, lookPath func(string) (string, error), name, bin, impact string) {
	path, err := lookPath(bin)
	if err != nil {
		logger.Warn().Str("tool", name).Str("bin", bin).Msgf("%s not found: %s", name, impact)
		return
	}
	logger.Info().Str("tool", name).Str("path", path).Msgf("%s available", name)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
