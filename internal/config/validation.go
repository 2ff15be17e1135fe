// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/validate"
)

// Validate checks cfg and returns every problem in one validate.ValidationError.
// Individual failures can be inspected with errors.As(err, &validate.Error{}).
func Validate(cfg AppConfig) error {
	v := validate.New()

	// API
	if strings.TrimSpace(cfg.API.Host) == "" {
		v.AddError("api.host", "host cannot be empty", cfg.API.Host)
	}
	v.Port("api.port", cfg.API.Port)
	if _, err := model.ParseProfile(cfg.API.DefaultProfile); err != nil {
		allowed := make([]string, 0, len(model.Profiles()))
		for _, p := range model.Profiles() {
			allowed = append(allowed, string(p))
		}
		v.OneOf("api.defaultProfile", cfg.API.DefaultProfile, allowed)
	}
	v.NonNegative("api.rateLimit", cfg.API.RateLimit)
	if cfg.API.RateLimit > 0 {
		v.Duration("api.rateWindow", cfg.API.RateWindow, time.Second, time.Hour)
	}
	v.Duration("api.shutdownTimeout", cfg.API.ShutdownTimeout, time.Second, 5*time.Minute)

	// Transcoder and resolver
	v.NotEmpty("ffmpeg.path", cfg.FFmpeg.Path)
	v.Range("ffmpeg.threads", cfg.FFmpeg.Threads, 0, 64)
	v.Duration("ffmpeg.stopGrace", cfg.FFmpeg.StopGrace, 100*time.Millisecond, time.Minute)
	v.NotEmpty("resolver.path", cfg.Resolver.Path)
	v.Duration("resolver.timeout", cfg.Resolver.Timeout, time.Second, 5*time.Minute)
	v.Duration("resolver.cacheTTL", cfg.Resolver.CacheTTL, 0, 24*time.Hour)

	// Reconnect
	r := cfg.Reconnect
	v.Duration("reconnect.minDelay", r.MinDelay, 100*time.Millisecond, 0)
	v.Duration("reconnect.maxDelay", r.MaxDelay, r.MinDelay, 0)
	v.Range("reconnect.maxAttempts", r.MaxAttempts, 1, 1000)
	v.Duration("reconnect.timeout", r.Timeout, 0, 24*time.Hour)

	v.Duration("health.interval", cfg.Health.Interval, time.Second, time.Hour)

	// Bridge
	if cfg.Bridge.URL != "" {
		v.URL("bridge.url", cfg.Bridge.URL, []string{"http", "https"})
	}
	v.Duration("bridge.timeout", cfg.Bridge.Timeout, 100*time.Millisecond, 5*time.Minute)
	if cfg.Bridge.RateLimit < 0 {
		v.AddError("bridge.rateLimit", "value cannot be negative", cfg.Bridge.RateLimit)
	}
	v.NonNegative("bridge.rateBurst", cfg.Bridge.RateBurst)
	v.NonNegative("bridge.breakerThreshold", cfg.Bridge.BreakerThreshold)

	// Backends
	if cfg.Redis.Addr != "" {
		v.HostPort("redis.addr", cfg.Redis.Addr)
	}
	v.Range("redis.db", cfg.Redis.DB, 0, 15)
	v.OneOf("bus.backend", cfg.Bus.Backend, []string{BusMemory, BusRedis})
	if cfg.Bus.Backend == BusRedis && cfg.Redis.Addr == "" {
		v.AddError("bus.backend", "redis bus requires redis.addr", cfg.Bus.Backend)
	}

	// Tracing
	if cfg.Tracing.Enabled {
		v.OneOf("tracing.exporter", cfg.Tracing.Exporter, []string{ExporterGRPC, ExporterHTTP})
		v.HostPort("tracing.endpoint", cfg.Tracing.Endpoint)
		v.Fraction("tracing.samplingRate", cfg.Tracing.SamplingRate)
	}

	// Log
	v.LogLevel("log.level", cfg.Log.Level)

	return v.Err()
}
