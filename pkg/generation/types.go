package generation

import "time"

// PanelsCount is the number of addressable result slots per streaming mode.
const PanelsCount = 5

// Status represents the lifecycle state of a generation item
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether no further automatic transitions occur from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Mode identifies a generation content mode
type Mode string

const (
	ModeText     Mode = "text"
	ModeHTML     Mode = "html"
	ModeResearch Mode = "research"
	ModeImage    Mode = "image"
	ModeVideo    Mode = "video"
)

// GroundingSource is one citation attached to a search-grounded response
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// StreamState holds one panel's accumulated streaming content.
//
// Text is append-only until the panel is reset. Error is populated only when
// Status is StatusError. Sources and SearchQueries are filled in research mode
// only.
type StreamState struct {
	Text          string            `json:"text"`
	Status        Status            `json:"status"`
	Error         string            `json:"error,omitempty"`
	Sources       []GroundingSource `json:"sources,omitempty"`
	SearchQueries []string          `json:"searchQueries,omitempty"`
}

// Translation records the prompt translation metadata returned by the image
// and video routes for non-English prompts.
type Translation struct {
	Original         string `json:"original"`
	Translated       string `json:"translated"`
	Language         string `json:"language"`
	WasTranslated    bool   `json:"wasTranslated"`
	HasSlavicPrompts bool   `json:"hasSlavicPrompts"`
}

// GeneratedImage is a single produced image. Immutable once produced.
type GeneratedImage struct {
	ImageBytes []byte `json:"imageBytes"`
	MimeType   string `json:"mimeType"`
	Index      int    `json:"index"`
}

// ImageResult holds the outcome of one image prompt within a batch
type ImageResult struct {
	Prompt           string           `json:"prompt"`
	TranslatedPrompt string           `json:"translatedPrompt,omitempty"`
	WasTranslated    bool             `json:"wasTranslated"`
	HasSlavicPrompts bool             `json:"hasSlavicPrompts"`
	Images           []GeneratedImage `json:"images"`
	Status           Status           `json:"status"`
	Error            string           `json:"error,omitempty"`
}

// GeneratedVideo is a single produced video asset. Duration carries the
// locally re-measured value, not the server-reported one.
type GeneratedVideo struct {
	VideoBytes  []byte        `json:"videoBytes"`
	MimeType    string        `json:"mimeType"`
	Duration    time.Duration `json:"duration"`
	Resolution  string        `json:"resolution"`
	AspectRatio string        `json:"aspectRatio"`
}

// VideoResult holds the outcome of one video prompt within a batch
type VideoResult struct {
	Prompt           string          `json:"prompt"`
	TranslatedPrompt string          `json:"translatedPrompt,omitempty"`
	WasTranslated    bool            `json:"wasTranslated"`
	Video            *GeneratedVideo `json:"video,omitempty"`
	Status           Status          `json:"status"`
	Error            string          `json:"error,omitempty"`
}
