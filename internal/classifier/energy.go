package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the input is not a readable PCM WAV file.
var ErrInvalidWAV = errors.New("classifier: not a valid PCM WAV file")

// EnergyConfig configures the EnergyClassifier.
type EnergyConfig struct {
	// FrameDuration is the analysis window size.
	FrameDuration time.Duration
	// ThreshDB is the RMS level in dBFS above which a frame is speech. Default -40.
	ThreshDB float64
	// MinSilence is the shortest gap kept between two speech runs.
	MinSilence time.Duration
	// MinSpeech is the shortest speech run kept.
	MinSpeech time.Duration
	// Transcoder converts non-WAV inputs before analysis. Nil rejects them.
	Transcoder Transcoder
	// WorkDir holds transcoded files. Empty uses os.TempDir().
	WorkDir string
}

// EnergyClassifier labels each frame of a PCM WAV file by its RMS level.
// Other formats are transcoded to WAV first when a Transcoder is set.
type EnergyClassifier struct {
	cfg EnergyConfig
}

// Verify interface implementation at compile time.
var _ Classifier = (*EnergyClassifier)(nil)

// NewEnergyClassifier creates an EnergyClassifier.
func NewEnergyClassifier(cfg EnergyConfig) *EnergyClassifier {
	if cfg.ThreshDB == 0 {
		cfg.ThreshDB = -40
	}
	return &EnergyClassifier{cfg: cfg}
}

// Classify implements Classifier.
func (c *EnergyClassifier) Classify(ctx context.Context, path string) (*Result, error) {
	if c.cfg.FrameDuration <= 0 {
		return nil, ErrInvalidFrameDuration
	}

	wavPath := path
	if !strings.EqualFold(filepath.Ext(path), ".wav") && c.cfg.Transcoder != nil {
		tmp, cleanup, err := c.transcode(ctx, path)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		wavPath = tmp
	}

	f, err := os.Open(wavPath) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	channels := buf.Format.NumChannels
	rate := buf.Format.SampleRate
	if channels < 1 || rate < 1 {
		return nil, fmt.Errorf("%w: bad format %d ch / %d Hz", ErrInvalidWAV, channels, rate)
	}

	samplesPerFrame := int(math.Round(float64(rate) * c.cfg.FrameDuration.Seconds()))
	if samplesPerFrame < 1 {
		samplesPerFrame = 1
	}
	fullScale := math.Pow(2, float64(int(dec.BitDepth)-1))

	voiced := frameLevels(buf.Data, channels, samplesPerFrame, fullScale, c.cfg.ThreshDB)
	total := len(voiced)
	if total == 0 {
		total = 1
	}

	runs := speechRuns(voiced)
	runs = fillGaps(runs, framesOf(c.cfg.MinSilence, c.cfg.FrameDuration))
	runs = dropShort(runs, framesOf(c.cfg.MinSpeech, c.cfg.FrameDuration))

	spans := make(map[int]int, len(runs))
	for _, r := range runs {
		spans[r[0]] = r[1]
	}

	return &Result{
		Path:          path,
		Spans:         spans,
		TotalFrames:   total,
		FrameDuration: c.cfg.FrameDuration,
	}, nil
}

// frameLevels reports, per frame, whether the RMS level exceeds threshDB.
// data holds interleaved samples.
func frameLevels(data []int, channels, samplesPerFrame int, fullScale, threshDB float64) []bool {
	step := samplesPerFrame * channels
	voiced := make([]bool, 0, len(data)/step+1)
	for off := 0; off < len(data); off += step {
		end := off + step
		if end > len(data) {
			end = len(data)
		}
		var sum float64
		for _, s := range data[off:end] {
			v := float64(s) / fullScale
			sum += v * v
		}
		rms := math.Sqrt(sum / float64(end-off))
		level := math.Inf(-1)
		if rms > 0 {
			level = 20 * math.Log10(rms)
		}
		voiced = append(voiced, level > threshDB)
	}
	return voiced
}

// speechRuns returns inclusive [start, end] frame runs of voiced frames.
func speechRuns(voiced []bool) [][2]int {
	var runs [][2]int
	start := -1
	for i, v := range voiced {
		switch {
		case v && start < 0:
			start = i
		case !v && start >= 0:
			runs = append(runs, [2]int{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(voiced) - 1})
	}
	return runs
}

// fillGaps merges runs separated by fewer than minGap frames.
func fillGaps(runs [][2]int, minGap int) [][2]int {
	if len(runs) == 0 || minGap <= 1 {
		return runs
	}
	merged := [][2]int{runs[0]}
	for _, r := range runs[1:] {
		last := &merged[len(merged)-1]
		if r[0]-last[1]-1 < minGap {
			last[1] = r[1]
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// dropShort removes runs shorter than minLen frames.
func dropShort(runs [][2]int, minLen int) [][2]int {
	if minLen <= 1 {
		return runs
	}
	kept := runs[:0]
	for _, r := range runs {
		if r[1]-r[0]+1 >= minLen {
			kept = append(kept, r)
		}
	}
	return kept
}

func framesOf(d, frameDuration time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / frameDuration)
}

// transcode writes path as WAV into the work directory and returns the new
// file with a function removing it.
func (c *EnergyClassifier) transcode(ctx context.Context, path string) (string, func(), error) {
	dir := c.cfg.WorkDir
	if dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, "energy_*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("create temp wav: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	cleanup := func() { _ = os.Remove(name) }

	if err := c.cfg.Transcoder.ToWAV(ctx, path, name); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("transcode %s: %w", filepath.Base(path), err)
	}
	return name, cleanup, nil
}
