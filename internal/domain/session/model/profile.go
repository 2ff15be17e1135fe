// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "strconv"

// Fixed audio encode parameters used whenever video is re-encoded.
const (
	AudioCodec      = "aac"
	AudioBitrate    = "128k"
	AudioSampleRate = 48000
	AudioChannels   = 2
)

// EncodeSettings are the video parameters of a named profile.
type EncodeSettings struct {
	Width       int
	Height      int
	BitrateKbps int
	FPS         int
}

// VideoBitrate renders the bitrate in ffmpeg notation ("3000k").
func (s EncodeSettings) VideoBitrate() string {
	return strconv.Itoa(s.BitrateKbps) + "k"
}

// BufSize is twice the target bitrate.
func (s EncodeSettings) BufSize() string {
	return strconv.Itoa(2*s.BitrateKbps) + "k"
}

// KeyframeInterval is one keyframe every two seconds.
func (s EncodeSettings) KeyframeInterval() int {
	return 2 * s.FPS
}

var catalog = map[Profile]EncodeSettings{
	Profile480p:  {Width: 854, Height: 480, BitrateKbps: 1500, FPS: 30},
	Profile720p:  {Width: 1280, Height: 720, BitrateKbps: 3000, FPS: 30},
	Profile1080p: {Width: 1920, Height: 1080, BitrateKbps: 5000, FPS: 30},
}

// Settings returns the encode parameters for p. Auto and unknown profiles
// have no entry, which means "copy without re-encoding".
func Settings(p Profile) (EncodeSettings, bool) {
	s, ok := catalog[p]
	return s, ok
}

// NeedsTranscoder reports whether a session must run an ffmpeg process
// between source and transport. RTMP is always repackaged.
func NeedsTranscoder(src StreamSource, p Profile) bool {
	if src.Kind == SourceRTMP {
		return true
	}
	_, encode := Settings(p)
	return encode
}
