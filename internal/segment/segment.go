// Package segment reconstructs a complete speech/non-speech timeline from the
// sparse speech spans reported by an acoustic classifier.
//
// Frames are addressed by index. A SpanMap only records speech; every frame
// outside a span is non-speech. Reconstruct turns the map into an ordered,
// gap-free sequence of alternating intervals with inclusive bounds.
package segment

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Static errors for reconstruction input validation.
var (
	// ErrInvalidFrameCount is returned when the total frame count is not positive.
	ErrInvalidFrameCount = errors.New("segment: total frame count must be positive")
	// ErrContractViolation is returned when the span map is malformed:
	// negative or inverted spans, overlapping or touching spans, or a span
	// ending past the total frame count.
	ErrContractViolation = errors.New("segment: span map violates input contract")
)

// Label marks an interval as speech or non-speech.
type Label string

const (
	// LabelSpeech marks frames the classifier detected as speech.
	LabelSpeech Label = "speech"
	// LabelNonSpeech marks every frame outside a speech span.
	LabelNonSpeech Label = "non-speech"
)

// IsValid returns true if the label is one of the known labels.
func (l Label) IsValid() bool {
	return l == LabelSpeech || l == LabelNonSpeech
}

// SpanMap maps a speech-start frame index to its speech-end frame index.
// Both ends are inclusive.
type SpanMap map[int]int

// Interval is a labeled run of frames, inclusive on both ends.
type Interval struct {
	Start int   `json:"start"`
	End   int   `json:"end"`
	Label Label `json:"label"`
}

// Frames returns the number of frames covered by the interval.
func (iv Interval) Frames() int {
	return iv.End - iv.Start + 1
}

// ToTime converts a frame index to a time offset.
// frameDuration is the classifier's analysis window size.
func ToTime(frame int, frameDuration time.Duration) time.Duration {
	return time.Duration(frame) * frameDuration
}

// sortedStarts returns the span starts in ascending order.
func sortedStarts(spans SpanMap) []int {
	starts := make([]int, 0, len(spans))
	for s := range spans {
		starts = append(starts, s)
	}
	sort.Ints(starts)
	return starts
}

// Validate checks the span map and frame count against the input contract.
func Validate(spans SpanMap, totalFrames int) error {
	if totalFrames <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidFrameCount, totalFrames)
	}

	prevEnd := -1
	for i, start := range sortedStarts(spans) {
		end := spans[start]
		switch {
		case start < 0:
			return fmt.Errorf("%w: span %d starts at negative frame %d", ErrContractViolation, i, start)
		case end < start:
			return fmt.Errorf("%w: span [%d, %d] ends before it starts", ErrContractViolation, start, end)
		case end > totalFrames:
			return fmt.Errorf("%w: span [%d, %d] ends past frame count %d", ErrContractViolation, start, end, totalFrames)
		case i > 0 && start <= prevEnd+1:
			return fmt.Errorf("%w: span starting at %d overlaps or touches span ending at %d", ErrContractViolation, start, prevEnd)
		}
		prevEnd = end
	}
	return nil
}

// Reconstruct expands a span map into the full ordered interval sequence.
//
// The first interval starts at frame 0. A trailing non-speech interval ends at
// totalFrames and is only produced when the last speech span stops short of
// it. Each gap between two speech spans becomes exactly one non-speech
// interval. An empty map yields a single non-speech interval.
func Reconstruct(spans SpanMap, totalFrames int) ([]Interval, error) {
	if err := Validate(spans, totalFrames); err != nil {
		return nil, err
	}

	if len(spans) == 0 {
		return []Interval{{Start: 0, End: totalFrames, Label: LabelNonSpeech}}, nil
	}

	starts := sortedStarts(spans)
	intervals := make([]Interval, 0, 2*len(starts)+1)

	if starts[0] != 0 {
		intervals = append(intervals, Interval{Start: 0, End: starts[0] - 1, Label: LabelNonSpeech})
	}

	pending, hasPending := 0, false
	for _, start := range starts {
		if hasPending {
			intervals = append(intervals, Interval{Start: pending, End: start - 1, Label: LabelNonSpeech})
		}
		end := spans[start]
		intervals = append(intervals, Interval{Start: start, End: end, Label: LabelSpeech})
		pending, hasPending = end+1, true
	}

	if pending < totalFrames {
		intervals = append(intervals, Interval{Start: pending, End: totalFrames, Label: LabelNonSpeech})
	}

	return intervals, nil
}

// SpeechRatio returns the fraction of covered frames labeled as speech.
func SpeechRatio(intervals []Interval) float64 {
	var speech, total int
	for _, iv := range intervals {
		n := iv.Frames()
		total += n
		if iv.Label == LabelSpeech {
			speech += n
		}
	}
	if total == 0 {
		return 0
	}
	return float64(speech) / float64(total)
}
