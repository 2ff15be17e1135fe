// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ytdlp resolves video-platform page URLs into direct media URLs
// using the yt-dlp binary.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/tgstream/internal/cache"
	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/log"
)

const (
	DefaultBinPath  = "yt-dlp"
	DefaultTimeout  = 30 * time.Second
	DefaultCacheTTL = 10 * time.Minute

	formatSelector = "best[ext=mp4]/best"
	maxStderr      = 512
)

// Config configures a Resolver.
type Config struct {
	BinPath  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Resolver runs yt-dlp and caches the resolved URL per source URL.
// Concurrent lookups for the same URL share one invocation.
type Resolver struct {
	cfg    Config
	cache  cache.Cache
	group  singleflight.Group
	logger zerolog.Logger
}

// New returns a Resolver. A nil cache or a negative CacheTTL disables
// caching.
func New(cfg Config, c cache.Cache) *Resolver {
	if cfg.BinPath == "" {
		cfg.BinPath = DefaultBinPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if c == nil {
		c = cache.Noop{}
	}
	return &Resolver{cfg: cfg, cache: c, logger: log.WithComponent("ytdlp")}
}

// Resolve implements ports.URLResolver. Failures wrap
// lifecycle.ErrSourceUnavailable.
func (r *Resolver) Resolve(ctx context.Context, url string) (string, error) {
	if direct, ok := r.cache.Get(ctx, url); ok {
		return direct, nil
	}

	v, err, shared := r.group.Do(url, func() (any, error) {
		direct, err := r.run(ctx, url)
		if err != nil {
			return "", err
		}
		r.cache.Set(ctx, url, direct, r.cfg.CacheTTL)
		return direct, nil
	})
	if err != nil {
		r.logger.Warn().Err(err).Str(log.FieldSourceURL, url).Bool("shared", shared).Msg("source resolve failed")
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) run(ctx context.Context, url string) (string, error) {
	bin, err := exec.LookPath(r.cfg.BinPath)
	if err != nil {
		return "", fmt.Errorf("%w: yt-dlp not found", lifecycle.ErrSourceUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	// #nosec G204 -- url is passed as a single argument after fixed flags
	cmd := exec.CommandContext(ctx, bin, "--get-url", "-f", formatSelector, "--no-playlist", url)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err = cmd.Run()
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: yt-dlp timed out after %s", lifecycle.ErrSourceUnavailable, r.cfg.Timeout)
	}
	if err != nil {
		return "", fmt.Errorf("%w: yt-dlp failed: %s", lifecycle.ErrSourceUnavailable, truncate(strings.TrimSpace(stderr.String())))
	}

	direct := firstLine(stdout.String())
	if direct == "" {
		return "", fmt.Errorf("%w: no stream URL found", lifecycle.ErrSourceUnavailable)
	}
	r.logger.Debug().Dur("took", time.Since(start)).Str(log.FieldSourceURL, url).Msg("source resolved")
	return direct, nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func truncate(s string) string {
	if len(s) > maxStderr {
		return s[:maxStderr] + "..."
	}
	return s
}

// Available reports the resolved path of the yt-dlp binary, if any.
func Available(bin string) (string, bool) {
	if bin == "" {
		bin = DefaultBinPath
	}
	path, err := exec.LookPath(bin)
	return path, err == nil
}
