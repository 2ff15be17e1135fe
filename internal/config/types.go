// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Bus backends.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
)

// Tracing exporters.
const (
	ExporterGRPC = "grpc"
	ExporterHTTP = "http"
)

// AppConfig is the fully resolved configuration. Durations in YAML use Go
// syntax ("5s"); in the environment a bare integer means seconds.
type AppConfig struct {
	Version string `yaml:"-"`

	API       APIConfig       `yaml:"api"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Health    HealthConfig    `yaml:"health"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Redis     RedisConfig     `yaml:"redis"`
	Bus       BusConfig       `yaml:"bus"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Log       LogConfig       `yaml:"log"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	DefaultProfile string `yaml:"defaultProfile"`
	// RateLimit is requests per RateWindow per client IP. Zero disables it.
	RateLimit       int           `yaml:"rateLimit"`
	RateWindow      time.Duration `yaml:"rateWindow"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// FFmpegConfig controls transcoder processes.
type FFmpegConfig struct {
	Path      string        `yaml:"path"`
	Threads   int           `yaml:"threads"`
	StopGrace time.Duration `yaml:"stopGrace"`
}

// ResolverConfig controls the yt-dlp URL resolver.
type ResolverConfig struct {
	Path     string        `yaml:"path"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ReconnectConfig bounds reconnection of a single session.
type ReconnectConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MinDelay    time.Duration `yaml:"minDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
	MaxAttempts int           `yaml:"maxAttempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// HealthConfig controls the session health monitor.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// BridgeConfig points at the call-bridge sidecar.
type BridgeConfig struct {
	URL              string        `yaml:"url"`
	Token            string        `yaml:"token"`
	Timeout          time.Duration `yaml:"timeout"`
	RateLimit        float64       `yaml:"rateLimit"`
	RateBurst        int           `yaml:"rateBurst"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// RedisConfig enables the Redis cache and bus when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BusConfig selects the lifecycle event bus.
type BusConfig struct {
	Backend string `yaml:"backend"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	JSON    bool   `yaml:"json"`
	Service string `yaml:"service"`
}
