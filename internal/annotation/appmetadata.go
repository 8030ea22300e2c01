package annotation

// Version is the released version of the segmenter.
const Version = "0.3.0"

// DefaultAppIRI identifies the segmenter in view metadata.
const DefaultAppIRI = "http://apps.clams.ai/acs-segmenter/v" + Version

// AppMetadata describes the segmenter to callers: what it consumes and what
// it produces.
type AppMetadata struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Vendor      string   `json:"vendor" yaml:"vendor"`
	IRI         string   `json:"iri" yaml:"iri"`
	Version     string   `json:"version" yaml:"version"`
	License     string   `json:"license" yaml:"license"`
	Requires    []string `json:"requires" yaml:"requires"`
	Produces    []Output `json:"produces" yaml:"produces"`
}

// Output is a produced annotation type with its fixed properties.
type Output struct {
	Type       string            `json:"@type" yaml:"type"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// NewAppMetadata returns the metadata of a segmenter emitting TimeFrames in unit.
// An empty iri falls back to DefaultAppIRI.
func NewAppMetadata(iri string, unit TimeUnit) AppMetadata {
	if iri == "" {
		iri = DefaultAppIRI
	}
	if unit == "" {
		unit = Milliseconds
	}
	return AppMetadata{
		Name: "ACS Segmenter",
		Description: "Reconstructs complete speech/non-speech segmentations from acoustic " +
			"classifier output and emits them as TimeFrame annotations.",
		Vendor:   "CLAMS",
		IRI:      iri,
		Version:  Version,
		License:  "Apache-2.0",
		Requires: []string{TypeAudioDocument},
		Produces: []Output{{
			Type:       TypeTimeFrame,
			Properties: map[string]string{"timeUnit": string(unit)},
		}},
	}
}
