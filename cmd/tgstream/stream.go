// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/tgstream/internal/config"
	"github.com/ManuGH/tgstream/internal/daemon"
	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/version"
)

type streamOptions struct {
	chat    string
	source  string
	profile string
	dryRun  bool
	output  string

	// build overrides the component options in tests.
	build func(*daemon.BuildOptions)
}

func newStreamCmd(root *rootOptions) *cobra.Command {
	opts := streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream CHAT SOURCE",
		Short: "Stream SOURCE into the call of CHAT until interrupted",
		Long: `Starts one session without the HTTP API and prints its state
transitions until Ctrl+C. CHAT is an @username or a numeric chat id.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.loadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			opts.chat, opts.source = args[0], args[1]
			return runStream(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.profile, "profile", "", "quality profile: auto, 480p, 720p, 1080p (default api.defaultProfile)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "simulate the call in memory")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "with --dry-run, write the transcoded media to this file")
	return cmd
}

func runStream(ctx context.Context, out io.Writer, cfg config.AppConfig, opts streamOptions) (err error) {
	name := opts.profile
	if name == "" {
		name = cfg.API.DefaultProfile
	}
	profile, err := model.ParseProfile(name)
	if err != nil {
		return err
	}

	bopts := daemon.BuildOptions{Version: version.Version, DryRun: opts.dryRun}
	if opts.output != "" {
		if !opts.dryRun {
			return errors.New("--output requires --dry-run")
		}
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer func() { _ = f.Close() }()
		bopts.StubOutput = f
	}
	if opts.build != nil {
		opts.build(&bopts)
	}

	comps, err := daemon.Build(ctx, cfg, bopts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := comps.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sub, err := comps.Bus.Subscribe(ctx, lifecycle.TopicSessions)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	comps.Monitor.Start(cfg.Health.Interval)
	g.Go(func() error {
		return comps.Reconnector.Run(gctx, comps.Registry.Disconnects())
	})

	snap, err := comps.Registry.Start(ctx, opts.chat, opts.source, profile)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	_, _ = fmt.Fprintf(out, "session %s streaming to %d (%s, %s)\n", snap.ID, snap.TargetID, snap.Profile, snap.SourceType)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-sub.C():
				if !ok {
					return nil
				}
				if ev.SessionID != snap.ID {
					continue
				}
				printEvent(out, ev)
				if ev.To == model.StatusStopped || ev.To == model.StatusError {
					return errSessionEnded
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, errSessionEnded) {
		final, _ := comps.Registry.Get(snap.ID)
		if final.Status == model.StatusError {
			return fmt.Errorf("session ended with error: %s", final.LastError)
		}
		return nil
	}
	return err
}

var errSessionEnded = errors.New("session ended")

func printEvent(out io.Writer, ev lifecycle.Event) {
	ts := ev.At.Local().Format("15:04:05")
	switch ev.Kind {
	case lifecycle.EvTransition:
		line := fmt.Sprintf("%s %s -> %s", ts, ev.From, ev.To)
		if ev.Attempt > 0 {
			line += fmt.Sprintf(" (attempt %d)", ev.Attempt)
		}
		if ev.Error != "" {
			line += ": " + ev.Error
		}
		_, _ = fmt.Fprintln(out, line)
	case lifecycle.EvDisconnected:
		_, _ = fmt.Fprintf(out, "%s disconnected: %s\n", ts, ev.Error)
	}
}
