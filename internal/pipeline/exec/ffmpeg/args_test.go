// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
)

// argValue returns the value following flag, or "" if flag is absent.
func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildArgs_HLS720p(t *testing.T) {
	src := model.StreamSource{URL: "https://x/live.m3u8", Kind: model.SourceHLS}
	args := BuildArgs(src, model.Profile720p, 2)

	assert.Equal(t, []string{"-y", "-hide_banner", "-loglevel", "warning", "-threads", "2"}, args[:6])
	assert.Equal(t, "1", argValue(args, "-reconnect"))
	assert.Equal(t, "5", argValue(args, "-reconnect_delay_max"))
	assert.Equal(t, src.URL, argValue(args, "-i"))

	assert.Equal(t, "libx264", argValue(args, "-c:v"))
	assert.Equal(t, "ultrafast", argValue(args, "-preset"))
	assert.Equal(t, "zerolatency", argValue(args, "-tune"))
	assert.Equal(t, "scale=1280:720", argValue(args, "-vf"))
	assert.Equal(t, "3000k", argValue(args, "-b:v"))
	assert.Equal(t, "3000k", argValue(args, "-maxrate"))
	assert.Equal(t, "6000k", argValue(args, "-bufsize"))
	assert.Equal(t, "30", argValue(args, "-r"))
	assert.Equal(t, "60", argValue(args, "-g"))

	assert.Equal(t, "aac", argValue(args, "-c:a"))
	assert.Equal(t, "128k", argValue(args, "-b:a"))
	assert.Equal(t, "48000", argValue(args, "-ar"))
	assert.Equal(t, "2", argValue(args, "-ac"))

	assert.Equal(t, []string{"-f", "mpegts", "-flush_packets", "1", "pipe:1"}, args[len(args)-5:])
}

func TestBuildArgs_RTMPAutoCopies(t *testing.T) {
	src := model.StreamSource{URL: "rtmp://host/app/key", Kind: model.SourceRTMP}
	args := BuildArgs(src, model.ProfileAuto, 0)

	assert.Equal(t, "live", argValue(args, "-rtmp_live"))
	assert.Empty(t, argValue(args, "-reconnect"))
	assert.Equal(t, "copy", argValue(args, "-c:v"))
	assert.Equal(t, "copy", argValue(args, "-c:a"))
	assert.NotContains(t, args, "libx264")
}

func TestBuildArgs_InputOptionsPrecedeInput(t *testing.T) {
	src := model.StreamSource{URL: "https://x/playlist.m3u", Kind: model.SourcePlaylistM3U}
	args := BuildArgs(src, model.Profile480p, -3)

	joined := strings.Join(args, " ")
	iIdx := strings.Index(joined, "-i ")
	require.Positive(t, iIdx)
	assert.Less(t, strings.Index(joined, "-reconnect "), iIdx)
	assert.Less(t, strings.Index(joined, "-fflags +genpts+discardcorrupt"), iIdx)
	assert.Greater(t, strings.Index(joined, "-c:v libx264"), iIdx)
	assert.Equal(t, "0", argValue(args, "-threads"))
	assert.Equal(t, "scale=854:480", argValue(args, "-vf"))
}

func TestBuildArgs_DirectFile1080p(t *testing.T) {
	src := model.StreamSource{URL: "/media/clip.mp4", Kind: model.SourceDirectFile}
	args := BuildArgs(src, model.Profile1080p, 4)

	assert.Empty(t, argValue(args, "-reconnect"))
	assert.Empty(t, argValue(args, "-rtmp_live"))
	assert.Equal(t, "scale=1920:1080", argValue(args, "-vf"))
	assert.Equal(t, "10000k", argValue(args, "-bufsize"))
}
