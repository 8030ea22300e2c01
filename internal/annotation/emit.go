package annotation

import (
	"fmt"
	"time"

	"github.com/maauso/acs-segmenter/internal/segment"
)

// EmitOptions carries the metadata shared by every record of a view.
type EmitOptions struct {
	// App identifies the producing application.
	App string
	// DocumentID is the source document of the view.
	DocumentID string
	// Unit is the time unit of start and end values.
	Unit TimeUnit
	// FrameDuration is the classifier's analysis window size.
	FrameDuration time.Duration
	// Now overrides the metadata timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Emit stamps the sink and appends one TimeFrame per interval, in order.
// Identifiers are tf1, tf2, ... in emission order.
func Emit(sink Sink, intervals []segment.Interval, opts EmitOptions) error {
	unit := opts.Unit
	if unit == "" {
		unit = Milliseconds
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	md := Metadata{
		App:       opts.App,
		Timestamp: now().UTC(),
		Contains: map[string]Contain{
			TypeTimeFrame: {Unit: unit, Document: opts.DocumentID},
		},
	}
	if err := sink.Stamp(md); err != nil {
		return fmt.Errorf("stamp view: %w", err)
	}

	for i, iv := range intervals {
		r := Record{
			Type: TypeTimeFrame,
			ID:   TimeFrameID(i + 1),
			Properties: Properties{
				Start:     unit.Convert(segment.ToTime(iv.Start, opts.FrameDuration)),
				End:       unit.Convert(segment.ToTime(iv.End, opts.FrameDuration)),
				FrameType: iv.Label,
			},
		}
		if err := sink.Add(r); err != nil {
			return fmt.Errorf("add %s: %w", r.ID, err)
		}
	}
	return nil
}

// EmitError stamps the sink as an error view for opts.DocumentID. The view
// carries message and no records.
func EmitError(sink Sink, message string, opts EmitOptions) error {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	md := Metadata{
		App:       opts.App,
		Timestamp: now().UTC(),
		Error:     &ViewError{Document: opts.DocumentID, Message: message},
	}
	if err := sink.Stamp(md); err != nil {
		return fmt.Errorf("stamp error view: %w", err)
	}
	return nil
}
