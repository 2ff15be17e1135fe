// SPDX-License-Identifier: MIT

// Package daemon assembles the relay from configuration and runs it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/tgstream/internal/api"
	"github.com/ManuGH/tgstream/internal/cache"
	"github.com/ManuGH/tgstream/internal/config"
	sessionmgr "github.com/ManuGH/tgstream/internal/domain/session/manager"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
	"github.com/ManuGH/tgstream/internal/health"
	"github.com/ManuGH/tgstream/internal/infra/calls/stub"
	"github.com/ManuGH/tgstream/internal/log"
	"github.com/ManuGH/tgstream/internal/pipeline/bus"
	"github.com/ManuGH/tgstream/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/tgstream/internal/pipeline/exec/ytdlp"
	"github.com/ManuGH/tgstream/internal/telegram/bridge"
	"github.com/ManuGH/tgstream/internal/telemetry"
)

const cacheCleanupInterval = time.Minute

// Transport is a call transport that also resolves chats, as both the
// bridge client and the in-memory stub do.
type Transport interface {
	ports.ChatResolver
	ports.CallTransport
}

// BuildOptions tune Build beyond the configuration.
type BuildOptions struct {
	Version string
	// DryRun swaps the bridge for the in-memory transport.
	DryRun bool
	// StubNames and StubOutput configure the dry-run transport.
	StubNames  map[string]int64
	StubOutput io.Writer

	// Transport and Transcoders override the configured adapters.
	Transport   Transport
	Transcoders ports.TranscoderFactory
}

type closer struct {
	name string
	fn   func() error
}

// Components is the assembled relay. Close releases everything Build
// acquired in the shutdown order reconnector, monitor, registry,
// adapters, tracer.
type Components struct {
	Registry    *sessionmgr.Registry
	Reconnector *sessionmgr.Reconnector
	Monitor     *sessionmgr.HealthMonitor
	Bus         ports.Bus
	Health      *health.Manager
	API         *api.Server
	Tracer      *telemetry.Provider
	// Bridge is nil in dry-run mode or when Transport was overridden.
	Bridge *bridge.Client

	defaultProfile atomic.Pointer[model.Profile]
	closers        []closer
	closeOnce      sync.Once
	closeErr       error
	logger         zerolog.Logger
}

// ReconnectPolicy converts the reconnect config section.
func ReconnectPolicy(c config.ReconnectConfig) sessionmgr.Policy {
	return sessionmgr.Policy{
		Enabled:     c.Enabled,
		MinDelay:    c.MinDelay,
		MaxDelay:    c.MaxDelay,
		MaxAttempts: c.MaxAttempts,
		Timeout:     c.Timeout,
	}
}

// ListenAddr is the API listen address of cfg.
func ListenAddr(cfg config.AppConfig) string {
	return net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
}

// Build wires every component from cfg. On error, whatever was already
// acquired is released.
func Build(ctx context.Context, cfg config.AppConfig, opts BuildOptions) (_ *Components, err error) {
	c := &Components{logger: log.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	c.Tracer, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: opts.Version,
		Environment:    cfg.Tracing.Environment,
		ExporterType:   cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	urlCache, redisClient, err := c.buildCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Bus.Backend {
	case config.BusRedis:
		if redisClient == nil {
			return nil, errors.New("bus: redis backend requires redis.addr")
		}
		c.Bus = bus.NewRedisBus(redisClient)
	default:
		mb := bus.NewMemoryBus()
		c.Bus = mb
		c.addCloser("bus", mb.Close)
	}

	transport, err := c.buildTransport(cfg, opts)
	if err != nil {
		return nil, err
	}

	transcoders := opts.Transcoders
	if transcoders == nil {
		transcoders = ffmpeg.NewFactory(ffmpeg.Config{
			BinPath:   cfg.FFmpeg.Path,
			Threads:   cfg.FFmpeg.Threads,
			StopGrace: cfg.FFmpeg.StopGrace,
		})
	}

	c.Registry, err = sessionmgr.NewRegistry(sessionmgr.Deps{
		Resolver:  transport,
		Transport: transport,
		URLs: ytdlp.New(ytdlp.Config{
			BinPath:  cfg.Resolver.Path,
			Timeout:  cfg.Resolver.Timeout,
			CacheTTL: cfg.Resolver.CacheTTL,
		}, urlCache),
		Transcoders: transcoders,
		Bus:         c.Bus,
	})
	if err != nil {
		return nil, err
	}
	c.Reconnector, c.Monitor = sessionmgr.Wire(c.Registry, ReconnectPolicy(cfg.Reconnect))

	c.Health = health.NewManager(opts.Version)
	c.Health.SetStreamer(health.StreamerFunc(func() int { return len(c.Registry.ListActive()) }))
	c.registerChecks(cfg, opts, redisClient)

	c.SetDefaultProfile(cfg.API.DefaultProfile)
	c.API, err = api.New(api.Options{
		Sessions:       c.Registry,
		Health:         c.Health,
		DefaultProfile: c.DefaultProfile,
		RateLimit:      cfg.API.RateLimit,
		RateWindow:     cfg.API.RateWindow,
		TracingService: cfg.Log.Service,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Components) addCloser(name string, fn func() error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// buildCache returns the resolver cache and, when redis.addr is set, the
// shared Redis client. The cache owns and closes the client.
func (c *Components) buildCache(ctx context.Context, cfg config.AppConfig) (cache.Cache, *redis.Client, error) {
	if cfg.Redis.Addr == "" {
		mem := cache.NewMemory(cacheCleanupInterval)
		c.addCloser("cache", mem.Close)
		return mem, nil, nil
	}
	client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	rc := cache.NewRedis(client, cfg.Redis.Prefix, log.WithComponent("cache"))
	c.addCloser("cache", rc.Close)
	c.logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis for resolver cache")
	return rc, client, nil
}

func (c *Components) buildTransport(cfg config.AppConfig, opts BuildOptions) (Transport, error) {
	switch {
	case opts.Transport != nil:
		return opts.Transport, nil
	case opts.DryRun:
		st := stub.New(stub.Options{Names: opts.StubNames, Output: opts.StubOutput})
		c.addCloser("transport", st.Close)
		c.logger.Warn().Msg("dry-run: calls are simulated in memory")
		return st, nil
	}

	client, err := bridge.New(bridge.Options{
		BaseURL:          cfg.Bridge.URL,
		Token:            cfg.Bridge.Token,
		Timeout:          cfg.Bridge.Timeout,
		RateLimit:        rate.Limit(cfg.Bridge.RateLimit),
		RateLimitBurst:   cfg.Bridge.RateBurst,
		BreakerThreshold: cfg.Bridge.BreakerThreshold,
		BreakerReset:     cfg.Bridge.BreakerReset,
		UserAgent:        "tgstream/" + opts.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	c.Bridge = client
	c.addCloser("transport", client.Close)
	return client, nil
}

func (c *Components) registerChecks(cfg config.AppConfig, opts BuildOptions, redisClient *redis.Client) {
	c.Health.RegisterChecker(health.NewBinaryChecker("ffmpeg", cfg.FFmpeg.Path, false))
	c.Health.RegisterChecker(health.NewBinaryChecker("yt-dlp", cfg.Resolver.Path, false))

	switch {
	case c.Bridge != nil:
		c.Health.SetConnectivity(c.Bridge.Health)
		c.Health.RegisterChecker(health.NewPingChecker("bridge", c.Bridge.Health, true))
		c.Health.RegisterChecker(health.NewBreakerChecker("bridge_breaker", c.Bridge.BreakerState))
	case opts.DryRun || opts.Transport != nil:
		c.Health.SetConnectivity(func(context.Context) error { return nil })
	}

	var redisPing func(context.Context) error
	if redisClient != nil {
		redisPing = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	c.Health.RegisterChecker(health.NewPingChecker("redis", redisPing, false))
}

// DefaultProfile is the profile applied when a start request names none.
func (c *Components) DefaultProfile() model.Profile {
	if p := c.defaultProfile.Load(); p != nil {
		return *p
	}
	return model.ProfileAuto
}

// SetDefaultProfile applies a validated profile name. Invalid names are
// ignored.
func (c *Components) SetDefaultProfile(name string) {
	p, err := model.ParseProfile(name)
	if err != nil {
		c.logger.Warn().Err(err).Msg("ignoring invalid default profile")
		return
	}
	c.defaultProfile.Store(&p)
}

// Close releases the components in shutdown order. It is safe on a
// partially built value and runs once.
func (c *Components) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		var errs []error
		for _, h := range c.shutdownSteps() {
			if err := h.hook(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// shutdownSteps lists the teardown in execution order.
func (c *Components) shutdownSteps() []namedHook {
	var steps []namedHook
	if c.Reconnector != nil {
		rc := c.Reconnector
		steps = append(steps, namedHook{"reconnector", func(context.Context) error { rc.Stop(); return nil }})
	}
	if c.Monitor != nil {
		mon := c.Monitor
		steps = append(steps, namedHook{"monitor", func(context.Context) error { mon.Stop(); return nil }})
	}
	if c.Registry != nil {
		reg := c.Registry
		steps = append(steps, namedHook{"registry", reg.Close})
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		steps = append(steps, namedHook{cl.name, func(context.Context) error { return cl.fn() }})
	}
	if c.Tracer != nil {
		tp := c.Tracer
		steps = append(steps, namedHook{"tracer", tp.Shutdown})
	}
	return steps
}
