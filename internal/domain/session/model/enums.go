// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "fmt"

// SourceKind classifies where a stream comes from.
type SourceKind string

const (
	SourcePlaylistM3U   SourceKind = "m3u"
	SourcePlaylistM3U8  SourceKind = "m3u8"
	SourceHLS           SourceKind = "hls"
	SourceRTMP          SourceKind = "rtmp"
	SourceVideoPlatform SourceKind = "video_platform"
	SourceDirectFile    SourceKind = "direct"
)

// IsPlaylist reports whether the input is served as an HTTP playlist and
// benefits from input-side reconnect flags.
func (k SourceKind) IsPlaylist() bool {
	switch k {
	case SourceHLS, SourcePlaylistM3U8, SourcePlaylistM3U:
		return true
	}
	return false
}

// Profile names a transcode preset.
type Profile string

const (
	ProfileAuto  Profile = "auto"
	Profile480p  Profile = "480p"
	Profile720p  Profile = "720p"
	Profile1080p Profile = "1080p"
)

// ParseProfile validates a profile name. The empty string maps to auto.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(s); p {
	case "":
		return ProfileAuto, nil
	case ProfileAuto, Profile480p, Profile720p, Profile1080p:
		return p, nil
	default:
		return "", fmt.Errorf("invalid profile %q (valid: auto, 480p, 720p, 1080p)", s)
	}
}

// Profiles lists every known profile in ascending quality.
func Profiles() []Profile {
	return []Profile{ProfileAuto, Profile480p, Profile720p, Profile1080p}
}
