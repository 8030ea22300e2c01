package segment

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstruct_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		spans  SpanMap
		total  int
		expect []Interval
	}{
		{
			name:  "single span with leading and trailing silence",
			spans: SpanMap{10: 20},
			total: 30,
			expect: []Interval{
				{0, 9, LabelNonSpeech},
				{10, 20, LabelSpeech},
				{21, 30, LabelNonSpeech},
			},
		},
		{
			name:   "span reaching the end",
			spans:  SpanMap{0: 5},
			total:  5,
			expect: []Interval{{0, 5, LabelSpeech}},
		},
		{
			name:  "two spans",
			spans: SpanMap{5: 10, 15: 20},
			total: 25,
			expect: []Interval{
				{0, 4, LabelNonSpeech},
				{5, 10, LabelSpeech},
				{11, 14, LabelNonSpeech},
				{15, 20, LabelSpeech},
				{21, 25, LabelNonSpeech},
			},
		},
		{
			name:   "empty map",
			spans:  SpanMap{},
			total:  40,
			expect: []Interval{{0, 40, LabelNonSpeech}},
		},
		{
			name:   "nil map",
			spans:  nil,
			total:  1,
			expect: []Interval{{0, 1, LabelNonSpeech}},
		},
		{
			name:  "last span one frame short of the end",
			spans: SpanMap{3: 9},
			total: 10,
			expect: []Interval{
				{0, 2, LabelNonSpeech},
				{3, 9, LabelSpeech},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconstruct(tt.spans, tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestReconstruct_KeysOutOfInsertionOrder(t *testing.T) {
	spans := SpanMap{}
	spans[40] = 45
	spans[2] = 8
	spans[20] = 30

	got, err := Reconstruct(spans, 50)
	require.NoError(t, err)

	starts := make([]int, 0, len(got))
	for _, iv := range got {
		starts = append(starts, iv.Start)
	}
	assert.Equal(t, []int{0, 2, 9, 20, 31, 40, 46}, starts)
}

func TestReconstruct_InvalidFrameCount(t *testing.T) {
	for _, total := range []int{0, -1} {
		got, err := Reconstruct(SpanMap{}, total)
		assert.ErrorIs(t, err, ErrInvalidFrameCount)
		assert.Nil(t, got)
	}
}

func TestReconstruct_ContractViolations(t *testing.T) {
	tests := []struct {
		name  string
		spans SpanMap
		total int
	}{
		{"overlapping spans", SpanMap{0: 10, 5: 15}, 30},
		{"touching spans", SpanMap{0: 10, 11: 15}, 30},
		{"inverted span", SpanMap{10: 5}, 30},
		{"negative start", SpanMap{-2: 5}, 30},
		{"end past frame count", SpanMap{10: 31}, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconstruct(tt.spans, tt.total)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrContractViolation)
			assert.Nil(t, got, "no partial output on invalid input")
		})
	}
}

func TestValidate_SingleFrameGapIsAccepted(t *testing.T) {
	assert.NoError(t, Validate(SpanMap{0: 10, 12: 15}, 20))
}

// randomSpans builds a valid span map over totalFrames frames.
func randomSpans(r *rand.Rand, totalFrames int) SpanMap {
	spans := SpanMap{}
	pos := r.Intn(3)
	for pos <= totalFrames {
		end := pos + r.Intn(8)
		if end > totalFrames {
			end = totalFrames
		}
		spans[pos] = end
		pos = end + 2 + r.Intn(6)
	}
	if r.Intn(5) == 0 {
		return SpanMap{}
	}
	return spans
}

func TestReconstruct_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		total := 1 + r.Intn(200)
		spans := randomSpans(r, total)

		got, err := Reconstruct(spans, total)
		require.NoError(t, err, "spans=%v total=%d", spans, total)
		require.NotEmpty(t, got)

		assert.Equal(t, 0, got[0].Start, "first interval starts at frame 0")

		last := got[len(got)-1]
		if last.Label == LabelNonSpeech {
			assert.Equal(t, total, last.End)
		} else {
			assert.GreaterOrEqual(t, last.End, total-1)
		}

		var speech, nonSpeech int
		for j, iv := range got {
			assert.LessOrEqual(t, iv.Start, iv.End)
			if iv.Label == LabelSpeech {
				speech++
				assert.Equal(t, spans[iv.Start], iv.End)
			} else {
				nonSpeech++
			}
			if j > 0 {
				prev := got[j-1]
				assert.Equal(t, prev.End+1, iv.Start, "contiguous boundaries")
				assert.NotEqual(t, prev.Label, iv.Label, "labels alternate")
			}
		}

		assert.Equal(t, len(spans), speech)
		assert.LessOrEqual(t, nonSpeech, len(spans)+1)
	}
}

func TestToTime(t *testing.T) {
	assert.Equal(t, time.Duration(0), ToTime(0, 10*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, ToTime(25, 10*time.Millisecond))
	assert.Equal(t, ToTime(123, 20*time.Millisecond), ToTime(123, 20*time.Millisecond))
}

func TestSpeechRatio(t *testing.T) {
	intervals, err := Reconstruct(SpanMap{0: 4}, 9)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, SpeechRatio(intervals), 1e-9)
	assert.Equal(t, 0.0, SpeechRatio(nil))
}

func TestLabel_IsValid(t *testing.T) {
	assert.True(t, LabelSpeech.IsValid())
	assert.True(t, LabelNonSpeech.IsValid())
	assert.False(t, Label("music").IsValid())
}
