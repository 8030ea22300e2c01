package annotation

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Sink receives the metadata and records of one file's segmentation.
type Sink interface {
	// Stamp sets the view metadata. It must be called once, before Add.
	Stamp(md Metadata) error
	// Add appends a record.
	Add(r Record) error
}

// View is the per-file annotation collection. It is written by a single
// producer and frozen once complete.
type View struct {
	ID          string   `json:"id" yaml:"id"`
	Metadata    Metadata `json:"metadata" yaml:"metadata"`
	Annotations []Record `json:"annotations" yaml:"annotations"`

	stamped bool
	frozen  bool
	ids     map[string]struct{}
}

// Compile-time check that View implements Sink.
var _ Sink = (*View)(nil)

// NewView creates an empty view.
func NewView(id string) *View {
	return &View{
		ID:          id,
		Annotations: make([]Record, 0),
		ids:         make(map[string]struct{}),
	}
}

// Stamp implements Sink.
func (v *View) Stamp(md Metadata) error {
	if v.frozen {
		return ErrViewFrozen
	}
	if v.stamped {
		return ErrAlreadyStamped
	}
	v.Metadata = md
	v.stamped = true
	return nil
}

// Add implements Sink.
func (v *View) Add(r Record) error {
	if v.frozen {
		return ErrViewFrozen
	}
	if !v.stamped {
		return ErrNotStamped
	}
	if _, ok := v.ids[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}
	if v.ids == nil {
		v.ids = make(map[string]struct{})
	}
	v.ids[r.ID] = struct{}{}
	v.Annotations = append(v.Annotations, r)
	return nil
}

// Freeze makes the view read-only.
func (v *View) Freeze() {
	v.frozen = true
}

// IsFrozen reports whether the view is read-only.
func (v *View) IsFrozen() bool {
	return v.frozen
}

// Clone returns a frozen deep copy of the view.
func (v *View) Clone() *View {
	if v == nil {
		return nil
	}
	c := &View{
		ID:          v.ID,
		Metadata:    v.Metadata,
		Annotations: make([]Record, len(v.Annotations)),
		stamped:     v.stamped,
		frozen:      true,
		ids:         make(map[string]struct{}, len(v.ids)),
	}
	copy(c.Annotations, v.Annotations)
	if v.Metadata.Contains != nil {
		c.Metadata.Contains = make(map[string]Contain, len(v.Metadata.Contains))
		for k, val := range v.Metadata.Contains {
			c.Metadata.Contains[k] = val
		}
	}
	if v.Metadata.Error != nil {
		e := *v.Metadata.Error
		c.Metadata.Error = &e
	}
	for id := range v.ids {
		c.ids[id] = struct{}{}
	}
	return c
}

// IsError reports whether the view records a failure instead of annotations.
func (v *View) IsError() bool {
	return v.Metadata.Error != nil
}

// TimeFrameID returns the identifier of the n-th TimeFrame, counting from 1.
func TimeFrameID(n int) string {
	return TimeFramePrefix + strconv.Itoa(n)
}

// UnmarshalJSON decodes a view as a finished, frozen collection.
func (v *View) UnmarshalJSON(data []byte) error {
	type plain View
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = View(p)
	v.stamped = true
	v.frozen = true
	v.ids = make(map[string]struct{}, len(v.Annotations))
	for _, r := range v.Annotations {
		v.ids[r.ID] = struct{}{}
	}
	return nil
}
