package classifier

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrMalformedTSV is returned when a classifier output row cannot be parsed.
var ErrMalformedTSV = errors.New("classifier: malformed TSV output")

// Row is one line of ACS output: the file path, speech spans in seconds and
// the speech ratio reported by the tool.
type Row struct {
	Path        string
	Spans       []timeSpan
	SpeechRatio float64
}

// ParseTSV reads ACS output. Each row holds the file path, an even number of
// timestamps (speech start, speech end, ...) and a trailing speech ratio.
func ParseTSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []Row
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTSV, line, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: line %d: expected path and speech ratio", ErrMalformedTSV, line)
		}

		stamps := rec[1 : len(rec)-1]
		if len(stamps)%2 != 0 {
			return nil, fmt.Errorf("%w: line %d: odd number of timestamps (%d)", ErrMalformedTSV, line, len(stamps))
		}

		row := Row{Path: rec[0]}
		row.SpeechRatio, err = strconv.ParseFloat(rec[len(rec)-1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: speech ratio: %v", ErrMalformedTSV, line, err)
		}

		for i := 0; i < len(stamps); i += 2 {
			start, err := strconv.ParseFloat(stamps[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: timestamp %q: %v", ErrMalformedTSV, line, stamps[i], err)
			}
			end, err := strconv.ParseFloat(stamps[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: timestamp %q: %v", ErrMalformedTSV, line, stamps[i+1], err)
			}
			row.Spans = append(row.Spans, timeSpan{start: start, end: end})
		}
		rows = append(rows, row)
	}
	return rows, nil
}
