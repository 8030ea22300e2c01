package classifier

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Transcoder converts an audio file into a PCM WAV file.
type Transcoder interface {
	ToWAV(ctx context.Context, src, dst string) error
}

// FFmpegTranscoder implements Transcoder using the ffmpeg CLI.
type FFmpegTranscoder struct {
	ffmpegPath string
	sampleRate int
}

// Verify interface implementation at compile time.
var _ Transcoder = (*FFmpegTranscoder)(nil)

// NewFFmpegTranscoder creates a transcoder producing 16 kHz mono 16-bit WAV.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegTranscoder(ffmpegPath string) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath, sampleRate: 16000}
}

// ToWAV decodes src and writes it to dst, overwriting dst.
func (t *FFmpegTranscoder) ToWAV(ctx context.Context, src, dst string) error {
	return t.run(ctx, []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", src,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(t.sampleRate),
		"-acodec", "pcm_s16le",
		dst,
	})
}

// run executes ffmpeg and returns an FFmpegError carrying stderr on failure.
func (t *FFmpegTranscoder) run(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
