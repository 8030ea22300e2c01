package classifier

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	durationRe     = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?[\d.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?[\d.]+)`)
)

// DurationProber reports the length of an audio file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFmpegProber implements DurationProber using ffmpeg CLI.
type FFmpegProber struct {
	ffmpegPath string
}

// Verify interface implementation at compile time.
var _ DurationProber = (*FFmpegProber)(nil)

// NewFFmpegProber creates a new FFmpegProber.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegProber(ffmpegPath string) *FFmpegProber {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegProber{ffmpegPath: ffmpegPath}
}

// Duration implements DurationProber.
func (p *FFmpegProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("input file: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-i", path,
		"-hide_banner",
		"-f", "null", "-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg writes stream info to stderr and may exit non-zero with a null output
	_ = cmd.Run()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return parseDuration(stderr.String())
}

// parseDuration extracts "Duration: HH:MM:SS.frac" from ffmpeg output.
func parseDuration(output string) (time.Duration, error) {
	matches := durationRe.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output: %s", output)
	}

	hours, _ := strconv.ParseFloat(matches[1], 64)
	minutes, _ := strconv.ParseFloat(matches[2], 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	frac, _ := strconv.ParseFloat("0."+matches[4], 64)

	total := hours*3600 + minutes*60 + seconds + frac
	return time.Duration(total * float64(time.Second)), nil
}

// detectSilences runs ffmpeg silencedetect and returns the stderr output.
func detectSilences(ctx context.Context, ffmpegPath, inputPath string, threshDB float64, minSilence time.Duration) (string, error) {
	filter := fmt.Sprintf("silencedetect=noise=%ddB:d=%f", int(threshDB), minSilence.Seconds())

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", inputPath,
		"-af", filter,
		"-f", "null",
		"-hide_banner",
		"-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// silencedetect output goes to stderr
	_ = cmd.Run()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return stderr.String(), nil
}

// parseSilenceOutput parses ffmpeg silencedetect output into silence intervals.
// A silence still open at the end of the stream is closed at duration.
func parseSilenceOutput(output string, duration float64) []timeSpan {
	var intervals []timeSpan
	var currentStart float64
	hasStart := false

	for _, line := range strings.Split(output, "\n") {
		if m := silenceStartRe.FindStringSubmatch(line); len(m) > 1 {
			val, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if val < 0 {
				val = 0
			}
			currentStart = val
			hasStart = true
		}

		if m := silenceEndRe.FindStringSubmatch(line); len(m) > 1 && hasStart {
			val, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			intervals = append(intervals, timeSpan{start: currentStart, end: val})
			hasStart = false
		}
	}

	if hasStart && currentStart < duration {
		intervals = append(intervals, timeSpan{start: currentStart, end: duration})
	}
	return intervals
}

// complementSpans returns the spans of [0, duration] not covered by silences.
// silences must be sorted and non-overlapping.
func complementSpans(silences []timeSpan, duration float64) []timeSpan {
	var speech []timeSpan
	cursor := 0.0
	for _, s := range silences {
		if s.start > cursor {
			speech = append(speech, timeSpan{start: cursor, end: s.start})
		}
		if s.end > cursor {
			cursor = s.end
		}
	}
	if cursor < duration {
		speech = append(speech, timeSpan{start: cursor, end: duration})
	}
	return speech
}
