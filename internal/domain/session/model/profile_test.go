// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsCatalog(t *testing.T) {
	_, ok := Settings(ProfileAuto)
	assert.False(t, ok, "auto is passthrough")

	_, ok = Settings(Profile("4k"))
	assert.False(t, ok)

	tests := map[Profile]EncodeSettings{
		Profile480p:  {Width: 854, Height: 480, BitrateKbps: 1500, FPS: 30},
		Profile720p:  {Width: 1280, Height: 720, BitrateKbps: 3000, FPS: 30},
		Profile1080p: {Width: 1920, Height: 1080, BitrateKbps: 5000, FPS: 30},
	}
	for p, want := range tests {
		got, ok := Settings(p)
		require.True(t, ok, p)
		assert.Equal(t, want, got, p)
	}
}

func TestEncodeSettingsRendering(t *testing.T) {
	s, _ := Settings(Profile720p)
	assert.Equal(t, "3000k", s.VideoBitrate())
	assert.Equal(t, "6000k", s.BufSize())
	assert.Equal(t, 60, s.KeyframeInterval())
}

func TestParseProfile(t *testing.T) {
	for _, p := range Profiles() {
		got, err := ParseProfile(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := ParseProfile("")
	require.NoError(t, err)
	assert.Equal(t, ProfileAuto, got)

	_, err = ParseProfile("720")
	require.Error(t, err)
}

func TestNeedsTranscoder(t *testing.T) {
	hls := Classify("https://x/a.m3u8")
	rtmp := Classify("rtmp://h/k")

	assert.False(t, NeedsTranscoder(hls, ProfileAuto))
	assert.True(t, NeedsTranscoder(hls, Profile480p))
	assert.True(t, NeedsTranscoder(rtmp, ProfileAuto))
}
