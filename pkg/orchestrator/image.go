package orchestrator

import (
	"context"

	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/dmelnik/lumen/pkg/stream"
)

// ImageGenerator issues one image generation request.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, req stream.ImageRequest) (*stream.ImageResponse, error)
}

// PublishImages receives a fresh copy of the batch results after every
// change, so callers can render progress while the batch is running.
type PublishImages func(results []generation.ImageResult)

// ImageRunner processes an image prompt batch: one request per non-empty
// input line, strictly sequential and in input order. Items are sequential
// on purpose — concurrent fan-out would change the externally observable
// rate-limit behavior of the upstream quota.
type ImageRunner struct {
	gen     ImageGenerator
	publish PublishImages

	Count        int
	ImageSize    string
	AspectRatio  string
	ModelVersion string
}

// NewImageRunner creates a runner with the given per-prompt image count.
func NewImageRunner(gen ImageGenerator, count int, publish PublishImages) *ImageRunner {
	if count <= 0 {
		count = 1
	}
	if publish == nil {
		publish = func([]generation.ImageResult) {}
	}
	return &ImageRunner{
		gen:     gen,
		publish: publish,
		Count:   count,
	}
}

// Run executes the batch for promptText and returns the final result slice
// in input order. One prompt's failure does not stop the rest of the batch.
// Cancelling ctx stops before the next unprocessed item.
func (r *ImageRunner) Run(ctx context.Context, promptText string) []generation.ImageResult {
	prompts := generation.SplitPrompts(generation.ModeImage, promptText)
	results := make([]generation.ImageResult, 0, len(prompts))

	for _, p := range prompts {
		if ctx.Err() != nil {
			break
		}

		results = appendImage(results, generation.ImageResult{
			Prompt: p,
			Status: generation.StatusLoading,
		})
		r.publish(copyImages(results))

		item := r.runOne(ctx, p)
		results = setImage(results, len(results)-1, item)
		r.publish(copyImages(results))
	}

	return results
}

func (r *ImageRunner) runOne(ctx context.Context, prompt string) generation.ImageResult {
	item := generation.ImageResult{Prompt: prompt}

	resp, err := r.gen.GenerateImages(ctx, stream.ImageRequest{
		Prompt:         prompt,
		NumberOfImages: r.Count,
		ImageSize:      r.ImageSize,
		AspectRatio:    r.AspectRatio,
		ModelVersion:   r.ModelVersion,
	})
	if err != nil {
		item.Status = generation.StatusError
		item.Error = err.Error()
		return item
	}

	item.Images = resp.Images
	if resp.Translation != nil {
		item.TranslatedPrompt = resp.Translation.Translated
		item.WasTranslated = resp.Translation.WasTranslated
		item.HasSlavicPrompts = resp.Translation.HasSlavicPrompts
	}
	item.Status = generation.StatusDone
	return item
}

// The result slice is never mutated in place once published; every change
// produces a fresh copy.

func appendImage(results []generation.ImageResult, item generation.ImageResult) []generation.ImageResult {
	out := make([]generation.ImageResult, 0, len(results)+1)
	out = append(out, results...)
	return append(out, item)
}

func setImage(results []generation.ImageResult, index int, item generation.ImageResult) []generation.ImageResult {
	out := copyImages(results)
	out[index] = item
	return out
}

func copyImages(results []generation.ImageResult) []generation.ImageResult {
	out := make([]generation.ImageResult, len(results))
	copy(out, results)
	return out
}
