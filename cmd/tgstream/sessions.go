// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/ManuGH/tgstream/internal/api"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/platform/httpx"
	"github.com/ManuGH/tgstream/internal/version"
)

type sessionsOptions struct {
	apiURL     string
	activeOnly bool
	asJSON     bool
	output     string
	timeout    time.Duration
}

func newSessionsCmd() *cobra.Command {
	opts := sessionsOptions{}
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the sessions of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessions(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.apiURL, "api-url", "http://127.0.0.1:8080", "base URL of the tgstream API")
	cmd.Flags().BoolVar(&opts.activeOnly, "active", false, "only list streaming, paused or reconnecting sessions")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to FILE atomically instead of stdout")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func runSessions(ctx context.Context, stdout io.Writer, opts sessionsOptions) error {
	list, err := fetchSessions(ctx, opts)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if opts.asJSON {
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(list); err != nil {
			return err
		}
	} else {
		renderSessions(&buf, list.Streams)
	}

	if opts.output == "" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}
	if err := renameio.WriteFile(opts.output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}
	_, _ = fmt.Fprintf(stdout, "wrote %d sessions to %s\n", list.Count, opts.output)
	return nil
}

func fetchSessions(ctx context.Context, opts sessionsOptions) (api.StreamListResponse, error) {
	var list api.StreamListResponse

	base, err := url.Parse(strings.TrimRight(opts.apiURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return list, fmt.Errorf("invalid --api-url %q", opts.apiURL)
	}
	u := base.JoinPath("api", "streams")
	if opts.activeOnly {
		u.RawQuery = url.Values{"active_only": {"true"}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return list, err
	}
	req.Header.Set("Accept", "application/json")

	client := httpx.NewClient(httpx.Options{Timeout: opts.timeout, UserAgent: "tgstream/" + version.Version})
	resp, err := client.Do(req)
	if err != nil {
		return list, fmt.Errorf("query %s: %w", u.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return list, err
	}
	if resp.StatusCode != http.StatusOK {
		var problem api.ErrorResponse
		if json.Unmarshal(body, &problem) == nil && problem.Error != "" {
			return list, fmt.Errorf("server returned %d: %s: %s", resp.StatusCode, problem.Error, problem.Detail)
		}
		return list, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return list, fmt.Errorf("decode sessions: %w", err)
	}
	return list, nil
}

func renderSessions(w io.Writer, streams []model.Snapshot) {
	if len(streams) == 0 {
		_, _ = fmt.Fprintln(w, "no sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTARGET\tSTATUS\tPROFILE\tSOURCE\tUPTIME\tRECONNECTS")
	for _, s := range streams {
		uptime := time.Duration(s.DurationSeconds * float64(time.Second)).Truncate(time.Second)
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.TargetID, s.Status, s.Profile, s.SourceType, uptime, s.ReconnectAttempts)
	}
	_ = tw.Flush()
}
