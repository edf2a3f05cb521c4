// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/ManuGH/restream/internal/domain/stream/ports"
)

// DefaultPreset is the x264 preset used when none is configured.
const DefaultPreset = "veryfast"

// BuildArgs renders the ffmpeg argument vector for a re-streaming job:
// real-time read of a local file, x264 at a constant target rate with a
// letterboxed frame, AAC audio, FLV out to the ingestion URL.
func BuildArgs(job ports.EncodeJob, preset string) []string {
	if preset == "" {
		preset = DefaultPreset
	}
	loop := "0"
	if job.Loop {
		loop = "-1"
	}
	rate := strconv.Itoa(job.BitrateK) + "k"
	w, h := job.Width, job.Height

	return []string{
		"-hide_banner",
		"-nostdin",
		"-re",
		"-stream_loop", loop,
		"-i", job.InputPath,
		"-c:v", "libx264",
		"-preset", preset,
		"-b:v", rate,
		"-maxrate", rate,
		"-bufsize", strconv.Itoa(job.BitrateK*2) + "k",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h, w, h),
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-f", "flv",
		job.DestinationURL,
	}
}
