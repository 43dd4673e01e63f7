package stream

import "github.com/dmelnik/lumen/pkg/generation"

// EventKind discriminates the records a generation stream can carry
type EventKind int

const (
	EventDelta EventKind = iota
	EventGrounding
	EventDone
	EventError
)

// GroundingMetadata carries citation data for a search-grounded response
type GroundingMetadata struct {
	Sources       []generation.GroundingSource `json:"sources,omitempty"`
	SearchQueries []string                     `json:"searchQueries,omitempty"`
}

// Event is one decoded record from a generation stream
type Event struct {
	Kind      EventKind
	Delta     string
	Grounding *GroundingMetadata
	Err       error
}

// record is the wire shape of one newline-delimited JSON line. Exactly one
// field is set per line.
type record struct {
	Delta             *string            `json:"delta,omitempty"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
	Done              bool               `json:"done,omitempty"`
	Error             *string            `json:"error,omitempty"`
}
