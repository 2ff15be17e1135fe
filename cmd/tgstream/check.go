// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/tgstream/internal/config"
	"github.com/ManuGH/tgstream/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/tgstream/internal/pipeline/exec/ytdlp"
	"github.com/ManuGH/tgstream/internal/telegram/bridge"
	"github.com/ManuGH/tgstream/internal/version"
)

const checkTimeout = 10 * time.Second

var errCheckFailed = errors.New("one or more checks failed")

func newCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check tools, bridge reachability and configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.loadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func runCheck(ctx context.Context, out io.Writer, cfg config.AppConfig) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	failed := false

	if v, err := ffmpeg.Version(ctx, cfg.FFmpeg.Path); err != nil {
		_, _ = fmt.Fprintf(out, "[WARN] ffmpeg: %v (transcoded sessions will fail)\n", err)
	} else {
		_, _ = fmt.Fprintf(out, "[ OK ] ffmpeg: %s\n", v)
	}

	if path, ok := ytdlp.Available(cfg.Resolver.Path); ok {
		_, _ = fmt.Fprintf(out, "[ OK ] yt-dlp: %s\n", path)
	} else {
		_, _ = fmt.Fprintf(out, "[WARN] yt-dlp: %s not found (video platform sources will fail)\n", cfg.Resolver.Path)
	}

	switch cfg.Bridge.URL {
	case "":
		_, _ = fmt.Fprintln(out, "[FAIL] bridge: bridge.url is not configured")
		failed = true
	default:
		client, err := bridge.New(bridge.Options{
			BaseURL:   cfg.Bridge.URL,
			Token:     cfg.Bridge.Token,
			Timeout:   cfg.Bridge.Timeout,
			UserAgent: "tgstream/" + version.Version,
		})
		if err == nil {
			err = client.Health(ctx)
			_ = client.Close()
		}
		if err != nil {
			_, _ = fmt.Fprintf(out, "[FAIL] bridge: %s: %v\n", config.MaskURL(cfg.Bridge.URL), err)
			failed = true
		} else {
			_, _ = fmt.Fprintf(out, "[ OK ] bridge: %s reachable\n", config.MaskURL(cfg.Bridge.URL))
		}
	}

	summary, err := yaml.Marshal(config.Summary(cfg))
	if err != nil {
		return fmt.Errorf("render config summary: %w", err)
	}
	_, _ = fmt.Fprintf(out, "\nEffective configuration:\n%s", summary)

	if failed {
		return errCheckFailed
	}
	return nil
}
