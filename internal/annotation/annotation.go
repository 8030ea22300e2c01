// Package annotation materializes reconstructed intervals as TimeFrame
// annotations in per-file views, using an MMIF-shaped container.
package annotation

import (
	"errors"
	"fmt"
	"time"

	"github.com/maauso/acs-segmenter/internal/segment"
)

// Annotation and document type identifiers.
const (
	TypeAudioDocument = "http://mmif.clams.ai/vocabulary/AudioDocument/v1"
	TypeTimeFrame     = "http://mmif.clams.ai/vocabulary/TimeFrame/v1"
)

// TimeFramePrefix prefixes every TimeFrame annotation identifier.
const TimeFramePrefix = "tf"

// Static errors for view operations.
var (
	// ErrViewFrozen is returned when modifying a view that has been frozen.
	ErrViewFrozen = errors.New("annotation: can't modify a frozen view")
	// ErrNotStamped is returned when adding a record before the view metadata is set.
	ErrNotStamped = errors.New("annotation: view metadata must be set before adding annotations")
	// ErrAlreadyStamped is returned when the view metadata is set twice.
	ErrAlreadyStamped = errors.New("annotation: view metadata already set")
	// ErrDuplicateID is returned when a record identifier is already used in the view.
	ErrDuplicateID = errors.New("annotation: duplicate annotation id")
	// ErrUnknownTimeUnit is returned for an unsupported time unit.
	ErrUnknownTimeUnit = errors.New("annotation: unknown time unit")
)

// TimeUnit is the unit of TimeFrame start and end values.
type TimeUnit string

const (
	// Milliseconds is the default unit.
	Milliseconds TimeUnit = "milliseconds"
	// Seconds expresses boundaries as fractional seconds.
	Seconds TimeUnit = "seconds"
)

// ParseTimeUnit validates a unit name. An empty name yields Milliseconds.
func ParseTimeUnit(s string) (TimeUnit, error) {
	switch TimeUnit(s) {
	case "", Milliseconds:
		return Milliseconds, nil
	case Seconds:
		return Seconds, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeUnit, s)
	}
}

// Convert expresses d in the unit.
func (u TimeUnit) Convert(d time.Duration) float64 {
	if u == Seconds {
		return d.Seconds()
	}
	return float64(d) / float64(time.Millisecond)
}

// Document is a source document of a container.
type Document struct {
	Type     string `json:"@type" yaml:"type" validate:"required"`
	ID       string `json:"id" yaml:"id" validate:"required"`
	Location string `json:"location" yaml:"location"`
}

// Contain declares an annotation type produced in a view and its shared properties.
type Contain struct {
	Unit     TimeUnit `json:"unit" yaml:"unit"`
	Document string   `json:"document" yaml:"document"`
}

// Metadata describes the producer of a view and what it contains.
// An error view has Error set and contains nothing.
type Metadata struct {
	App       string             `json:"app" yaml:"app"`
	Timestamp time.Time          `json:"timestamp" yaml:"timestamp"`
	Contains  map[string]Contain `json:"contains,omitempty" yaml:"contains,omitempty"`
	Error     *ViewError         `json:"error,omitempty" yaml:"error,omitempty"`
}

// ViewError reports why a document could not be annotated.
type ViewError struct {
	Document string `json:"document" yaml:"document"`
	Message  string `json:"message" yaml:"message"`
}

// Properties holds the TimeFrame values of a record.
type Properties struct {
	Start     float64       `json:"start" yaml:"start"`
	End       float64       `json:"end" yaml:"end"`
	FrameType segment.Label `json:"frameType" yaml:"frameType"`
}

// Record is a single TimeFrame annotation.
type Record struct {
	Type       string     `json:"@type" yaml:"type"`
	ID         string     `json:"id" yaml:"id"`
	Properties Properties `json:"properties" yaml:"properties"`
}

// Container is the document/view bundle exchanged with callers.
type Container struct {
	Documents []Document `json:"documents" yaml:"documents" validate:"required,min=1,dive"`
	Views     []*View    `json:"views" yaml:"views"`
}

// AddViews appends views to the container. A view whose id is already taken
// is renamed to the next free "v_<n>" identifier.
func (c *Container) AddViews(views ...*View) {
	taken := make(map[string]struct{}, len(c.Views)+len(views))
	for _, v := range c.Views {
		taken[v.ID] = struct{}{}
	}
	next := len(c.Views)
	for _, v := range views {
		if _, dup := taken[v.ID]; dup || v.ID == "" {
			for {
				id := fmt.Sprintf("v_%d", next)
				next++
				if _, used := taken[id]; !used {
					v.ID = id
					break
				}
			}
		}
		taken[v.ID] = struct{}{}
		c.Views = append(c.Views, v)
	}
}
