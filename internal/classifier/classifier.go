// Package classifier runs speech/non-speech classifiers over audio files and
// reports their output as frame-indexed speech spans.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/maauso/acs-segmenter/internal/segment"
)

// Static errors for classifier operations.
var (
	// ErrUnknownKind is returned by New for an unsupported classifier kind.
	ErrUnknownKind = errors.New("classifier: unknown kind")
	// ErrInvalidFrameDuration is returned when the frame duration is not positive.
	ErrInvalidFrameDuration = errors.New("classifier: frame duration must be positive")
	// ErrNoOutput is returned when the classifier produced no row for the input file.
	ErrNoOutput = errors.New("classifier: no output for file")
)

// Kind names a classifier implementation.
type Kind string

const (
	// KindACS runs the external Brandeis acoustic classification tool.
	KindACS Kind = "acs"
	// KindSilence uses ffmpeg silencedetect.
	KindSilence Kind = "silence"
	// KindEnergy labels frames by RMS level of a PCM WAV file.
	KindEnergy Kind = "energy"
)

// Result is the classifier output for one audio file.
type Result struct {
	// Path is the classified file.
	Path string
	// Spans maps speech-start frames to speech-end frames.
	Spans segment.SpanMap
	// TotalFrames is the number of analysis frames in the file.
	TotalFrames int
	// FrameDuration is the size of one analysis frame.
	FrameDuration time.Duration
	// TSV is the raw tab-separated output of classifiers that produce one.
	TSV []byte
}

// Classifier detects speech in a single audio file.
type Classifier interface {
	Classify(ctx context.Context, path string) (*Result, error)
}

// Options configures the classifier built by New.
type Options struct {
	FrameDuration time.Duration
	FFmpegPath    string
	WorkDir       string

	// ACS settings.
	Python    string
	Script    string
	ModelRoot string

	// Silence and energy settings.
	SilenceThreshDB float64
	MinSilence      time.Duration
	MinSpeech       time.Duration
}

// New builds the classifier named by kind.
func New(kind Kind, opts Options) (Classifier, error) {
	if opts.FrameDuration <= 0 {
		return nil, ErrInvalidFrameDuration
	}
	switch kind {
	case KindACS:
		return NewACSClassifier(ACSConfig{
			Python:        opts.Python,
			Script:        opts.Script,
			ModelRoot:     opts.ModelRoot,
			WorkDir:       opts.WorkDir,
			FrameDuration: opts.FrameDuration,
		}, NewFFmpegProber(opts.FFmpegPath)), nil
	case KindSilence:
		return NewSilenceClassifier(opts.FFmpegPath, opts.FrameDuration, opts.SilenceThreshDB, opts.MinSilence), nil
	case KindEnergy:
		return NewEnergyClassifier(EnergyConfig{
			FrameDuration: opts.FrameDuration,
			ThreshDB:      opts.SilenceThreshDB,
			MinSilence:    opts.MinSilence,
			MinSpeech:     opts.MinSpeech,
			Transcoder:    NewFFmpegTranscoder(opts.FFmpegPath),
			WorkDir:       opts.WorkDir,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// timeSpan is a speech span in seconds.
type timeSpan struct {
	start float64
	end   float64
}

// framesFor returns the number of frames needed to cover d.
func framesFor(d time.Duration, frameDuration time.Duration) int {
	n := int(math.Ceil(float64(d) / float64(frameDuration)))
	if n < 1 {
		n = 1
	}
	return n
}

// spansFromTimes converts speech spans in seconds into frame spans.
// Spans that become adjacent or overlapping after rounding are merged, so the
// result always satisfies segment.Validate for totalFrames.
func spansFromTimes(times []timeSpan, frameDuration time.Duration, totalFrames int) segment.SpanMap {
	sorted := make([]timeSpan, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	fd := frameDuration.Seconds()
	spans := segment.SpanMap{}
	lastStart, lastEnd := -1, -2

	for _, ts := range sorted {
		start := int(math.Round(ts.start / fd))
		end := int(math.Round(ts.end/fd)) - 1
		if start < 0 {
			start = 0
		}
		if end > totalFrames-1 {
			end = totalFrames - 1
		}
		if start > end {
			continue
		}
		if lastStart >= 0 && start <= lastEnd+1 {
			if end > lastEnd {
				lastEnd = end
				spans[lastStart] = end
			}
			continue
		}
		spans[start] = end
		lastStart, lastEnd = start, end
	}
	return spans
}
