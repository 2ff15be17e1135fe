// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"strconv"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
)

// Input probing limits (bytes / microseconds).
const (
	analyzeDuration = "5000000"
	probeSize       = "5000000"
)

// BuildArgs returns the ffmpeg argument list that reads src and writes an
// MPEG-TS stream to stdout. Named profiles re-encode video with x264 and
// audio with AAC; auto copies both streams.
func BuildArgs(src model.StreamSource, profile model.Profile, threads int) []string {
	if threads < 0 {
		threads = 0
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "warning",
		"-threads", strconv.Itoa(threads),
	}

	switch {
	case src.Kind.IsPlaylist():
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	case src.Kind == model.SourceRTMP:
		args = append(args, "-rtmp_live", "live")
	}

	args = append(args,
		"-analyzeduration", analyzeDuration,
		"-probesize", probeSize,
		"-fflags", "+genpts+discardcorrupt",
		"-i", src.URL,
	)

	if s, ok := model.Settings(profile); ok {
		args = append(args, videoEncodeArgs(s)...)
		args = append(args, audioEncodeArgs()...)
	} else {
		args = append(args, "-c:v", "copy", "-c:a", "copy")
	}

	return append(args,
		"-f", "mpegts",
		"-flush_packets", "1",
		"pipe:1",
	)
}

func videoEncodeArgs(s model.EncodeSettings) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-vf", "scale=" + strconv.Itoa(s.Width) + ":" + strconv.Itoa(s.Height),
		"-b:v", s.VideoBitrate(),
		"-maxrate", s.VideoBitrate(),
		"-bufsize", s.BufSize(),
		"-r", strconv.Itoa(s.FPS),
		"-g", strconv.Itoa(s.KeyframeInterval()),
		"-pix_fmt", "yuv420p",
	}
}

func audioEncodeArgs() []string {
	return []string{
		"-c:a", model.AudioCodec,
		"-b:a", model.AudioBitrate,
		"-ar", strconv.Itoa(model.AudioSampleRate),
		"-ac", strconv.Itoa(model.AudioChannels),
	}
}
