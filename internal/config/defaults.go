// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		API: APIConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			DefaultProfile:  "auto",
			RateLimit:       120,
			RateWindow:      time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		FFmpeg: FFmpegConfig{
			Path:      "ffmpeg",
			Threads:   2,
			StopGrace: 5 * time.Second,
		},
		Resolver: ResolverConfig{
			Path:     "yt-dlp",
			Timeout:  30 * time.Second,
			CacheTTL: 10 * time.Minute,
		},
		Reconnect: ReconnectConfig{
			Enabled:     true,
			MinDelay:    5 * time.Second,
			MaxDelay:    30 * time.Second,
			MaxAttempts: 10,
			Timeout:     90 * time.Second,
		},
		Health: HealthConfig{
			Interval: 30 * time.Second,
		},
		Bridge: BridgeConfig{
			Timeout:          10 * time.Second,
			RateLimit:        20,
			RateBurst:        40,
			BreakerThreshold: 5,
			BreakerReset:     15 * time.Second,
		},
		Redis: RedisConfig{
			Prefix: "tgstream:cache:",
		},
		Bus: BusConfig{
			Backend: BusMemory,
		},
		Tracing: TracingConfig{
			Exporter:     ExporterGRPC,
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
		Log: LogConfig{
			Level:   "info",
			Service: "tgstream",
		},
	}
}
