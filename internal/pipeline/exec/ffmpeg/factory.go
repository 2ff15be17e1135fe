// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
)

// Factory creates ffmpeg processes sharing one Config.
type Factory struct {
	Config Config
}

// NewFactory returns a Factory for cfg.
func NewFactory(cfg Config) *Factory {
	return &Factory{Config: cfg.withDefaults()}
}

// New implements ports.TranscoderFactory.
func (f *Factory) New(src model.StreamSource, profile model.Profile) ports.Transcoder {
	return NewProcess(f.Config, src, profile)
}

// Version runs "<bin> -version" and returns the first output line.
func Version(ctx context.Context, bin string) (string, error) {
	if bin == "" {
		bin = DefaultBinPath
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s", lifecycle.ErrBinaryNotFound, bin)
	}
	// #nosec G204 -- bin comes from operator configuration
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", bin, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}
