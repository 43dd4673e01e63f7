package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmelnik/lumen/pkg/generation"
	"github.com/dmelnik/lumen/pkg/stream"
	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"google.golang.org/genai"
)

// Gemini implements Generator over the Google GenAI SDK.
type Gemini struct {
	client *genai.Client

	// Video operations are long-running server-side jobs; the SDK polls them
	// through the operation value returned at submit time, so submissions are
	// kept here keyed by the opaque handle given to callers.
	mu  sync.Mutex
	ops map[string]*genai.GenerateVideosOperation
}

// NewGemini creates a backend authenticated with the given API key.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Gemini{
		client: client,
		ops:    make(map[string]*genai.GenerateVideosOperation),
	}, nil
}

// StreamContent streams a completion, emitting one chunk per SDK response.
func (g *Gemini) StreamContent(ctx context.Context, model, prompt string, withSearch bool, emit func(Chunk) error) error {
	var config *genai.GenerateContentConfig
	if withSearch {
		config = &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
			},
		}
	}

	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), config) {
		if err != nil {
			return fmt.Errorf("generation failed: %w", err)
		}

		chunk := Chunk{Delta: resp.Text()}
		if len(resp.Candidates) > 0 {
			chunk.Grounding = convertGrounding(resp.Candidates[0].GroundingMetadata)
		}
		if chunk.Delta == "" && chunk.Grounding == nil {
			continue
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

// GenerateContent produces a single non-streamed completion.
func (g *Gemini) GenerateContent(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	return resp.Text(), nil
}

// GenerateImages produces count images for prompt.
func (g *Gemini) GenerateImages(ctx context.Context, model, prompt string, count int, imageSize, aspectRatio string) ([]generation.GeneratedImage, error) {
	resp, err := g.client.Models.GenerateImages(ctx, model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(count),
		AspectRatio:    aspectRatio,
		ImageSize:      imageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	images := make([]generation.GeneratedImage, 0, len(resp.GeneratedImages))
	for i, img := range resp.GeneratedImages {
		if img.Image == nil {
			continue
		}
		images = append(images, generation.GeneratedImage{
			ImageBytes: img.Image.ImageBytes,
			MimeType:   img.Image.MIMEType,
			Index:      i,
		})
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("image generation returned no images")
	}
	return images, nil
}

// StartVideo submits a long-running video job.
func (g *Gemini) StartVideo(ctx context.Context, job VideoJob) (string, error) {
	op, err := g.client.Models.GenerateVideos(ctx, job.Model, job.Prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos:  1,
		Resolution:      job.Resolution,
		AspectRatio:     job.AspectRatio,
		DurationSeconds: genai.Ptr(int32(job.DurationSeconds)),
	})
	if err != nil {
		return "", fmt.Errorf("video submit failed: %w", err)
	}

	handle := op.Name
	if handle == "" {
		handle = uuid.NewString()
	}

	g.mu.Lock()
	g.ops[handle] = op
	g.mu.Unlock()

	return handle, nil
}

// PollVideo refreshes a submitted job and reports its state.
func (g *Gemini) PollVideo(ctx context.Context, operation string) (VideoJobStatus, error) {
	g.mu.Lock()
	op, ok := g.ops[operation]
	g.mu.Unlock()
	if !ok {
		return VideoJobStatus{}, fmt.Errorf("unknown video operation %q", operation)
	}

	op, err := g.client.Operations.GetVideosOperation(ctx, op, nil)
	if err != nil {
		return VideoJobStatus{}, fmt.Errorf("video poll failed: %w", err)
	}

	g.mu.Lock()
	g.ops[operation] = op
	g.mu.Unlock()

	status := VideoJobStatus{Done: op.Done}
	if op.Error != nil {
		status.Error = fmt.Sprintf("%v", op.Error["message"])
	}
	if op.Response != nil && len(op.Response.GeneratedVideos) > 0 {
		if v := op.Response.GeneratedVideos[0].Video; v != nil {
			status.VideoURI = v.URI
		}
	}
	if op.Done {
		// The job is finished either way; forget the handle.
		g.mu.Lock()
		delete(g.ops, operation)
		g.mu.Unlock()
	}
	return status, nil
}

// DownloadVideo fetches a finished asset by its URI.
func (g *Gemini) DownloadVideo(ctx context.Context, videoURI string) ([]byte, string, error) {
	data, err := g.client.Files.Download(ctx, &genai.Video{URI: videoURI}, nil)
	if err != nil {
		return nil, "", fmt.Errorf("video download failed: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("video download returned no data")
	}
	return data, "video/mp4", nil
}

// EmbeddingFunc adapts the backend's embedding model to the prompt search
// index.
func (g *Gemini) EmbeddingFunc(model string) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		contents := []*genai.Content{
			genai.NewContentFromText(text, genai.RoleUser),
		}
		result, err := g.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		})
		if err != nil {
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embeddings returned")
		}
		return result.Embeddings[0].Values, nil
	}
}

// convertGrounding maps SDK grounding metadata onto the wire shape. Returns
// nil when there is nothing to report.
func convertGrounding(meta *genai.GroundingMetadata) *stream.GroundingMetadata {
	if meta == nil {
		return nil
	}

	out := &stream.GroundingMetadata{
		SearchQueries: meta.WebSearchQueries,
	}
	for _, chunk := range meta.GroundingChunks {
		if chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		out.Sources = append(out.Sources, generation.GroundingSource{
			Title: chunk.Web.Title,
			URI:   chunk.Web.URI,
		})
	}
	if len(out.Sources) == 0 && len(out.SearchQueries) == 0 {
		return nil
	}
	return out
}
