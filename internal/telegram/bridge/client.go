// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bridge is the client for the call-bridge sidecar, which owns the
// messaging-platform account and the group-call media transport.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
	"github.com/ManuGH/tgstream/internal/log"
	"github.com/ManuGH/tgstream/internal/resilience"
	"github.com/ManuGH/tgstream/internal/telemetry"
)

var (
	_ ports.ChatResolver      = (*Client)(nil)
	_ ports.CallTransport     = (*Client)(nil)
	_ ports.CallStatusProber  = (*Client)(nil)
	_ ports.StreamEndNotifier = (*Client)(nil)
)

// Options configures the bridge client.
type Options struct {
	BaseURL          string
	Token            string
	Timeout          time.Duration
	RateLimit        rate.Limit
	RateLimitBurst   int
	BreakerThreshold int
	BreakerReset     time.Duration
	UserAgent        string
}

const (
	defaultTimeout        = 10 * time.Second
	defaultRateLimit      = 20
	defaultRateLimitBurst = 40
	defaultBreakerReset   = 15 * time.Second

	endpointResolve = "/v1/chats/resolve"
	endpointCall    = "/v1/calls/{id}"
	endpointHealth  = "/v1/health"

	mediaContentType = "video/mp2t"
	maxErrorBody     = 4 << 10
)

// Client talks JSON over HTTP to the bridge. Media for stream-mode joins
// is uploaded as one chunked PUT per call.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	api       *http.Client
	media     *http.Client
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
	logger    zerolog.Logger

	ends chan ports.StreamEnd

	mu      sync.Mutex
	uploads map[int64]*upload
	wg      sync.WaitGroup
}

type upload struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a client for the bridge at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid bridge url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = defaultBreakerReset
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "tgstream"
	}

	transport := otelhttp.NewTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
	})

	return &Client{
		baseURL:   base,
		token:     opts.Token,
		userAgent: opts.UserAgent,
		api:       &http.Client{Timeout: opts.Timeout, Transport: transport},
		// Uploads last as long as the stream.
		media:   &http.Client{Transport: transport},
		limiter: rate.NewLimiter(opts.RateLimit, opts.RateLimitBurst),
		breaker: resilience.NewCircuitBreaker("bridge", opts.BreakerThreshold, opts.BreakerReset,
			resilience.WithFailureClassifier(countsAgainstBreaker)),
		logger:  log.WithComponent("bridge"),
		ends:    make(chan ports.StreamEnd, 16),
		uploads: make(map[int64]*upload),
	}, nil
}

// Only transport-level failures trip the breaker. A bridge answering 403
// or 404 is healthy.
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !errors.Is(err, lifecycle.ErrPermissionDenied) &&
		!errors.Is(err, lifecycle.ErrTargetNotFound) &&
		!errors.Is(err, errNotFound)
}

type resolveRequest struct {
	Identifier string `json:"identifier"`
}

type resolveResponse struct {
	ChatID int64 `json:"chat_id"`
}

type joinRequest struct {
	Mode       string `json:"mode"`
	URL        string `json:"url,omitempty"`
	SourceType string `json:"source_type,omitempty"`
}

type callStatus struct {
	Active bool `json:"active"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ResolveTarget maps a numeric id or @username to a chat id.
func (c *Client) ResolveTarget(ctx context.Context, identifier string) (int64, error) {
	var out resolveResponse
	if err := c.call(ctx, http.MethodPost, endpointResolve, endpointResolve, resolveRequest{Identifier: identifier}, &out); err != nil {
		return 0, err
	}
	return out.ChatID, nil
}

// Join joins the group call. URL-mode media is played by the bridge itself;
// stream-mode media is uploaded from media.Chunks until the channel closes.
func (c *Client) Join(ctx context.Context, targetID int64, media ports.Media) error {
	req := joinRequest{Mode: "url", URL: media.URL, SourceType: string(media.Kind)}
	if media.IsStream() {
		req = joinRequest{Mode: "stream", SourceType: string(media.Kind)}
	}
	if err := c.call(ctx, http.MethodPost, callPath(targetID, "join"), endpointCall+"/join", req, nil); err != nil {
		return err
	}
	if media.IsStream() {
		c.startUpload(ctx, targetID, media.Chunks)
	}
	return nil
}

// Leave stops any upload and leaves the call. Leaving a call the bridge
// does not know about succeeds.
func (c *Client) Leave(ctx context.Context, targetID int64) error {
	c.stopUpload(targetID)
	err := c.call(ctx, http.MethodPost, callPath(targetID, "leave"), endpointCall+"/leave", nil, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

func (c *Client) PauseMedia(ctx context.Context, targetID int64) error {
	return c.call(ctx, http.MethodPost, callPath(targetID, "pause"), endpointCall+"/pause", nil, nil)
}

func (c *Client) ResumeMedia(ctx context.Context, targetID int64) error {
	return c.call(ctx, http.MethodPost, callPath(targetID, "resume"), endpointCall+"/resume", nil, nil)
}

// CallActive reports whether the bridge still has media flowing in the
// target's call.
func (c *Client) CallActive(ctx context.Context, targetID int64) (bool, error) {
	var out callStatus
	err := c.call(ctx, http.MethodGet, callPath(targetID, ""), endpointCall, nil, &out)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Active, nil
}

// Health checks the bridge health endpoint. It bypasses the breaker so it
// can observe recovery.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, endpointHealth, endpointHealth, nil, nil)
	return err
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// StreamEnded delivers upload failures for stream-mode calls.
func (c *Client) StreamEnded() <-chan ports.StreamEnd {
	return c.ends
}

// Close cancels all uploads and waits for them.
func (c *Client) Close() error {
	c.mu.Lock()
	for id, u := range c.uploads {
		u.cancel()
		delete(c.uploads, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
	c.api.CloseIdleConnections()
	return nil
}

func callPath(targetID int64, action string) string {
	p := "/v1/calls/" + strconv.FormatInt(targetID, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

var errNotFound = errors.New("not found")

func (c *Client) call(ctx context.Context, method, path, endpoint string, in, out any) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		_, err := c.do(ctx, method, path, endpoint, in, out)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: bridge circuit open", lifecycle.ErrConnectionFailed)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path, endpoint string, in, out any) (int, error) {
	tracer := telemetry.Tracer("tgstream.bridge")
	ctx, span := tracer.Start(ctx, "bridge.request", trace.WithSpanKind(trace.SpanKindClient))
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	if err = c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var body io.Reader
	if in != nil {
		payload, mErr := json.Marshal(in)
		if mErr != nil {
			err = fmt.Errorf("encode request: %w", mErr)
			return 0, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	c.applyHeaders(req)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, doErr := c.api.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	recordRequest(method, endpoint, status, time.Since(start), doErr)
	span.SetAttributes(telemetry.HTTPAttributes(method, endpoint, path, status)...)

	if doErr != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
			return 0, err
		}
		err = fmt.Errorf("%w: %s %s: %v", lifecycle.ErrConnectionFailed, method, endpoint, doErr)
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if status >= http.StatusBadRequest {
		err = statusError(endpoint, status, readError(resp.Body))
		return status, err
	}
	if out != nil {
		if dErr := json.NewDecoder(resp.Body).Decode(out); dErr != nil {
			err = fmt.Errorf("%w: decode %s response: %v", lifecycle.ErrConnectionFailed, endpoint, dErr)
			return status, err
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return status, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	return strings.TrimSpace(string(data))
}

func statusError(endpoint string, status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", lifecycle.ErrPermissionDenied, msg)
	case status == http.StatusNotFound && endpoint == endpointResolve:
		return fmt.Errorf("%w: %s", lifecycle.ErrTargetNotFound, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w: %s", lifecycle.ErrConnectionFailed, errNotFound, msg)
	default:
		return fmt.Errorf("%w: bridge returned %d: %s", lifecycle.ErrConnectionFailed, status, msg)
	}
}
