package classifier

import (
	"context"
	"fmt"
	"time"
)

// SilenceClassifier treats everything outside ffmpeg-detected silences as speech.
type SilenceClassifier struct {
	ffmpegPath    string
	frameDuration time.Duration
	threshDB      float64
	minSilence    time.Duration
	prober        DurationProber
}

// Verify interface implementation at compile time.
var _ Classifier = (*SilenceClassifier)(nil)

// NewSilenceClassifier creates a SilenceClassifier.
// Zero thresholds default to -40 dBFS and 500ms.
func NewSilenceClassifier(ffmpegPath string, frameDuration time.Duration, threshDB float64, minSilence time.Duration) *SilenceClassifier {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if threshDB == 0 {
		threshDB = -40
	}
	if minSilence <= 0 {
		minSilence = 500 * time.Millisecond
	}
	return &SilenceClassifier{
		ffmpegPath:    ffmpegPath,
		frameDuration: frameDuration,
		threshDB:      threshDB,
		minSilence:    minSilence,
		prober:        NewFFmpegProber(ffmpegPath),
	}
}

// Classify implements Classifier.
func (c *SilenceClassifier) Classify(ctx context.Context, path string) (*Result, error) {
	if c.frameDuration <= 0 {
		return nil, ErrInvalidFrameDuration
	}

	duration, err := c.prober.Duration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get audio duration: %w", err)
	}

	output, err := detectSilences(ctx, c.ffmpegPath, path, c.threshDB, c.minSilence)
	if err != nil {
		return nil, fmt.Errorf("detect silences: %w", err)
	}

	secs := duration.Seconds()
	total := framesFor(duration, c.frameDuration)
	speech := complementSpans(parseSilenceOutput(output, secs), secs)

	return &Result{
		Path:          path,
		Spans:         spansFromTimes(speech, c.frameDuration, total),
		TotalFrames:   total,
		FrameDuration: c.frameDuration,
	}, nil
}
