package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/dmelnik/lumen/pkg/stream"
	"github.com/dmelnik/lumen/pkg/veo"

	"github.com/dmelnik/lumen/pkg/logger"
)

// ErrPollTimeout is raised when a video operation stays unfinished past the
// polling bound.
var ErrPollTimeout = errors.New("video generation timed out")

// Defaults for the long-running operation poll loop: 60 attempts at 10s is
// roughly ten minutes.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollAttempts = 60
)

// VideoAPI is the long-running video generation contract: submit, poll
// until done, then download exactly once.
type VideoAPI interface {
	SubmitVideo(ctx context.Context, req stream.VideoRequest) (*stream.VideoOperation, error)
	PollOperation(ctx context.Context, operation string) (*stream.VideoStatus, error)
	DownloadVideo(ctx context.Context, videoURI string) (*stream.VideoAsset, error)
}

// DurationProber measures the true duration of a finished asset. The
// server-reported duration is not trusted; the asset is decoded locally.
type DurationProber func(data []byte) (time.Duration, error)

// PublishVideos receives a fresh copy of the batch results after every
// change.
type PublishVideos func(results []generation.VideoResult)

// VideoRunner processes a video prompt batch: one request per blank-line
// paragraph, strictly sequential and in input order.
type VideoRunner struct {
	api     VideoAPI
	probe   DurationProber
	publish PublishVideos

	Selection    veo.Selection
	PollInterval time.Duration
	PollAttempts int
}

// NewVideoRunner creates a runner with default polling bounds.
func NewVideoRunner(api VideoAPI, probe DurationProber, publish PublishVideos) *VideoRunner {
	if publish == nil {
		publish = func([]generation.VideoResult) {}
	}
	return &VideoRunner{
		api:          api,
		probe:        probe,
		publish:      publish,
		PollInterval: DefaultPollInterval,
		PollAttempts: DefaultPollAttempts,
	}
}

// Run executes the batch for promptText and returns the final result slice
// in input order. The selection is clamped to a valid combination before any
// request is issued. Per-item failures are isolated; ctx cancellation stops
// the poll loop promptly and skips unprocessed items.
func (r *VideoRunner) Run(ctx context.Context, promptText string) []generation.VideoResult {
	sel := veo.Clamp(r.Selection)
	prompts := generation.SplitPrompts(generation.ModeVideo, promptText)
	results := make([]generation.VideoResult, 0, len(prompts))

	for _, p := range prompts {
		if ctx.Err() != nil {
			break
		}

		results = appendVideo(results, generation.VideoResult{
			Prompt: p,
			Status: generation.StatusLoading,
		})
		r.publish(copyVideos(results))

		item := r.runOne(ctx, sel, p)
		results = setVideo(results, len(results)-1, item)
		r.publish(copyVideos(results))
	}

	return results
}

func (r *VideoRunner) runOne(ctx context.Context, sel veo.Selection, prompt string) generation.VideoResult {
	item := generation.VideoResult{Prompt: prompt}

	op, err := r.api.SubmitVideo(ctx, stream.VideoRequest{
		Prompt:          prompt,
		ModelVersion:    string(sel.Model),
		Resolution:      string(sel.Resolution),
		DurationSeconds: int(sel.Duration),
		AspectRatio:     string(sel.AspectRatio),
	})
	if err != nil {
		return failVideo(item, err)
	}
	if op.Translation != nil {
		item.TranslatedPrompt = op.Translation.Translated
		item.WasTranslated = op.Translation.WasTranslated
	}

	videoURI, err := r.await(ctx, op.Operation)
	if err != nil {
		return failVideo(item, err)
	}

	asset, err := r.api.DownloadVideo(ctx, videoURI)
	if err != nil {
		return failVideo(item, err)
	}

	duration := time.Duration(sel.Duration) * time.Second
	if r.probe != nil {
		if measured, err := r.probe(asset.VideoBytes); err == nil {
			duration = measured
		} else {
			logger.Warn("could not measure video duration, keeping requested value: %v", err)
		}
	}

	item.Video = &generation.GeneratedVideo{
		VideoBytes:  asset.VideoBytes,
		MimeType:    asset.MimeType,
		Duration:    duration,
		Resolution:  string(sel.Resolution),
		AspectRatio: string(sel.AspectRatio),
	}
	item.Status = generation.StatusDone
	return item
}

// await polls the operation until it completes, observing cancellation and
// the attempt bound. The asset URI is returned exactly once, on completion.
func (r *VideoRunner) await(ctx context.Context, operation string) (string, error) {
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < r.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		status, err := r.api.PollOperation(ctx, operation)
		if err != nil {
			return "", err
		}
		if status.Error != "" {
			return "", fmt.Errorf("video generation failed: %s", status.Error)
		}
		if status.Done {
			if status.VideoURI == "" {
				return "", fmt.Errorf("completed operation carries no asset")
			}
			return status.VideoURI, nil
		}
	}

	return "", ErrPollTimeout
}

func failVideo(item generation.VideoResult, err error) generation.VideoResult {
	item.Status = generation.StatusError
	item.Error = err.Error()
	return item
}

func appendVideo(results []generation.VideoResult, item generation.VideoResult) []generation.VideoResult {
	out := make([]generation.VideoResult, 0, len(results)+1)
	out = append(out, results...)
	return append(out, item)
}

func setVideo(results []generation.VideoResult, index int, item generation.VideoResult) []generation.VideoResult {
	out := copyVideos(results)
	out[index] = item
	return out
}

func copyVideos(results []generation.VideoResult) []generation.VideoResult {
	out := make([]generation.VideoResult, len(results))
	copy(out, results)
	return out
}
