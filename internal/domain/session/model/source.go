// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "strings"

// StreamSource is an immutable classified input URL.
type StreamSource struct {
	URL  string     `json:"url"`
	Kind SourceKind `json:"kind"`
}

// Classify maps a URL to its source kind. It never fails: anything that is
// not recognised is treated as HLS.
func Classify(url string) StreamSource {
	lower := strings.ToLower(url)

	kind := SourceHLS
	switch {
	case strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be"):
		kind = SourceVideoPlatform
	case strings.HasSuffix(lower, ".m3u"):
		kind = SourcePlaylistM3U
	case strings.HasSuffix(lower, ".m3u8") || strings.Contains(lower, "/hls/"):
		kind = SourceHLS
	case strings.HasPrefix(lower, "rtmp://") || strings.HasPrefix(lower, "rtmps://"):
		kind = SourceRTMP
	}
	return StreamSource{URL: url, Kind: kind}
}
