// Package server exposes the generation API routes the CLI streams from.
// Handlers speak newline-delimited JSON for streaming modes and plain JSON
// elsewhere; the vendor SDK is hidden behind the Generator interface so the
// routes can be tested against fakes.
package server

import (
	"context"

	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/dmelnik/lumen/pkg/stream"
)

// Chunk is one unit of streamed content from the model
type Chunk struct {
	Delta     string
	Grounding *stream.GroundingMetadata
}

// VideoJob describes one long-running video generation submission.
type VideoJob struct {
	Model           string
	Prompt          string
	Resolution      string
	AspectRatio     string
	DurationSeconds int
}

// VideoJobStatus is the state of a submitted video job at one poll.
type VideoJobStatus struct {
	Done     bool
	VideoURI string
	Error    string
}

// Generator is the model backend the route handlers call into.
type Generator interface {
	// StreamContent generates text for prompt, invoking emit for every chunk
	// in order. When withSearch is set the response is grounded with web
	// search and chunks may carry grounding metadata. A non-nil error from
	// emit stops the stream.
	StreamContent(ctx context.Context, model, prompt string, withSearch bool, emit func(Chunk) error) error

	// GenerateContent produces a single non-streamed completion.
	GenerateContent(ctx context.Context, model, prompt string) (string, error)

	// GenerateImages produces count images for prompt.
	GenerateImages(ctx context.Context, model, prompt string, count int, imageSize, aspectRatio string) ([]generation.GeneratedImage, error)

	// StartVideo submits a video job and returns an opaque operation handle.
	StartVideo(ctx context.Context, job VideoJob) (string, error)

	// PollVideo reports the current state of an operation handle.
	PollVideo(ctx context.Context, operation string) (VideoJobStatus, error)

	// DownloadVideo fetches a finished asset by its URI.
	DownloadVideo(ctx context.Context, videoURI string) ([]byte, string, error)
}
