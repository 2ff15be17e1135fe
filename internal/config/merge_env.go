// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

// mergeEnvConfig applies TG_* overrides. ENV has the highest precedence.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	l.mergeEnvAPI(cfg)
	l.mergeEnvFFmpeg(cfg)
	l.mergeEnvResolver(cfg)
	l.mergeEnvReconnect(cfg)
	l.mergeEnvBridge(cfg)
	l.mergeEnvBackends(cfg)
	l.mergeEnvTracing(cfg)

	cfg.Health.Interval = l.envDuration("TG_HEALTH_CHECK_INTERVAL", cfg.Health.Interval)
	cfg.Log.Level = l.envString("TG_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.JSON = l.envBool("TG_LOG_JSON", cfg.Log.JSON)
	cfg.Log.Service = l.envString("TG_LOG_SERVICE", cfg.Log.Service)
}

func (l *Loader) mergeEnvAPI(cfg *AppConfig) {
	cfg.API.Host = l.envString("TG_API_HOST", cfg.API.Host)
	cfg.API.Port = l.envInt("TG_API_PORT", cfg.API.Port)
	cfg.API.DefaultProfile = l.envString("TG_DEFAULT_PROFILE", cfg.API.DefaultProfile)
	cfg.API.RateLimit = l.envInt("TG_API_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.RateWindow = l.envDuration("TG_API_RATE_WINDOW", cfg.API.RateWindow)
	cfg.API.ShutdownTimeout = l.envDuration("TG_API_SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)
}

func (l *Loader) mergeEnvFFmpeg(cfg *AppConfig) {
	cfg.FFmpeg.Path = l.envString("TG_FFMPEG_PATH", cfg.FFmpeg.Path)
	cfg.FFmpeg.Threads = l.envInt("TG_FFMPEG_THREADS", cfg.FFmpeg.Threads)
	cfg.FFmpeg.StopGrace = l.envDuration("TG_FFMPEG_STOP_GRACE", cfg.FFmpeg.StopGrace)
}

func (l *Loader) mergeEnvResolver(cfg *AppConfig) {
	cfg.Resolver.Path = l.envString("TG_YTDLP_PATH", cfg.Resolver.Path)
	cfg.Resolver.Timeout = l.envDuration("TG_RESOLVER_TIMEOUT", cfg.Resolver.Timeout)
	cfg.Resolver.CacheTTL = l.envDuration("TG_RESOLVER_CACHE_TTL", cfg.Resolver.CacheTTL)
}

func (l *Loader) mergeEnvReconnect(cfg *AppConfig) {
	cfg.Reconnect.Enabled = l.envBool("TG_RECONNECT_ENABLED", cfg.Reconnect.Enabled)
	cfg.Reconnect.MinDelay = l.envDuration("TG_RECONNECT_MIN_DELAY", cfg.Reconnect.MinDelay)
	cfg.Reconnect.MaxDelay = l.envDuration("TG_RECONNECT_MAX_DELAY", cfg.Reconnect.MaxDelay)
	cfg.Reconnect.MaxAttempts = l.envInt("TG_RECONNECT_MAX_ATTEMPTS", cfg.Reconnect.MaxAttempts)
	cfg.Reconnect.Timeout = l.envDuration("TG_RECONNECT_TIMEOUT", cfg.Reconnect.Timeout)
}

func (l *Loader) mergeEnvBridge(cfg *AppConfig) {
	cfg.Bridge.URL = l.envString("TG_BRIDGE_URL", cfg.Bridge.URL)
	cfg.Bridge.Token = l.envString("TG_BRIDGE_TOKEN", cfg.Bridge.Token)
	cfg.Bridge.Timeout = l.envDuration("TG_BRIDGE_TIMEOUT", cfg.Bridge.Timeout)
	cfg.Bridge.RateLimit = l.envFloat("TG_BRIDGE_RATE_LIMIT", cfg.Bridge.RateLimit)
	cfg.Bridge.RateBurst = l.envInt("TG_BRIDGE_RATE_BURST", cfg.Bridge.RateBurst)
	cfg.Bridge.BreakerThreshold = l.envInt("TG_BRIDGE_BREAKER_THRESHOLD", cfg.Bridge.BreakerThreshold)
	cfg.Bridge.BreakerReset = l.envDuration("TG_BRIDGE_BREAKER_RESET", cfg.Bridge.BreakerReset)
}

func (l *Loader) mergeEnvBackends(cfg *AppConfig) {
	cfg.Redis.Addr = l.envString("TG_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = l.envString("TG_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = l.envInt("TG_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Prefix = l.envString("TG_REDIS_PREFIX", cfg.Redis.Prefix)
	cfg.Bus.Backend = l.envString("TG_BUS_BACKEND", cfg.Bus.Backend)
}

func (l *Loader) mergeEnvTracing(cfg *AppConfig) {
	cfg.Tracing.Enabled = l.envBool("TG_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = l.envString("TG_TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = l.envString("TG_TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.SamplingRate = l.envFloat("TG_TRACING_SAMPLING_RATE", cfg.Tracing.SamplingRate)
	cfg.Tracing.Environment = l.envString("TG_TRACING_ENVIRONMENT", cfg.Tracing.Environment)
}
