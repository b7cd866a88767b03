package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

const (
	segmentSeconds = 15.0
	sceneThreshold = 0.3
)

// Extractor cuts a vertical highlight segment out of a downloaded
// trailer with ffmpeg. Used as the fallback when the clip-extraction
// service fails.
type Extractor struct {
	ffmpegBin string
	prober    *Prober
	run       runCommand
	logger    *slog.Logger
}

// NewExtractor creates an Extractor. An empty binary defaults to
// "ffmpeg" on PATH.
func NewExtractor(ffmpegBin string, prober *Prober, logger *slog.Logger) *Extractor {
	bin := strings.TrimSpace(ffmpegBin)
	if bin == "" {
		bin = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ffmpegBin: bin, prober: prober, run: execCommand, logger: logger}
}

// ExtractSegment cuts a 15 s 9:16 segment from src into dest. The start
// point is the first scene change past the opening tenth of the trailer,
// falling back to the first quarter when scene detection finds nothing.
func (e *Extractor) ExtractSegment(ctx context.Context, src, dest string) error {
	duration, err := e.prober.Duration(ctx, src)
	if err != nil {
		return fmt.Errorf("probing trailer: %w", err)
	}

	start := e.segmentStart(ctx, src, duration)
	args := segmentArgs(src, dest, start)
	if _, err := e.run(ctx, e.ffmpegBin, args...); err != nil {
		return fmt.Errorf("extracting segment: %w", err)
	}
	e.logger.Info("Fallback segment extracted", "source", src, "start_seconds", start)
	return nil
}

// segmentStart picks the cut point. Scene-detection failures are not
// fatal; the quarter-point heuristic still yields a usable segment.
func (e *Extractor) segmentStart(ctx context.Context, src string, duration float64) float64 {
	fallback := duration * 0.25
	if duration <= segmentSeconds {
		return 0
	}
	latest := duration - segmentSeconds
	if fallback > latest {
		fallback = latest
	}

	out, err := e.run(ctx, e.prober.binary,
		"-v", "quiet",
		"-f", "lavfi",
		"-i", fmt.Sprintf("movie=%s,select=gt(scene\\,%g)", src, sceneThreshold),
		"-show_entries", "frame=pkt_pts_time",
		"-print_format", "json",
	)
	if err != nil {
		e.logger.Warn("Scene detection failed, using quarter point", "error", err)
		return fallback
	}

	earliest := duration * 0.1
	for _, ts := range parseFrameTimes(out) {
		if ts >= earliest && ts <= latest {
			return ts
		}
	}
	return fallback
}

func parseFrameTimes(out []byte) []float64 {
	var payload struct {
		Frames []struct {
			PktPtsTime string `json:"pkt_pts_time"`
		} `json:"frames"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil
	}
	times := make([]float64, 0, len(payload.Frames))
	for _, f := range payload.Frames {
		if ts, err := strconv.ParseFloat(f.PktPtsTime, 64); err == nil {
			times = append(times, ts)
		}
	}
	return times
}

func segmentArgs(src, dest string, start float64) []string {
	return []string{
		"-y", "-hide_banner",
		"-ss", fmt.Sprintf("%.2f", start),
		"-i", src,
		"-t", fmt.Sprintf("%.0f", segmentSeconds),
		"-vf", "crop=ih*9/16:ih,scale=1080:1920",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-f", "mp4",
		dest,
	}
}
